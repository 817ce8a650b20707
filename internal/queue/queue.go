package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/configtypes"
	"github.com/ledgerdesk/engine/internal/common/redis"
	"github.com/ledgerdesk/engine/internal/common/runid"
)

// Queue is the durable Redis-backed job queue. Producer and consumer sides
// share this type; both must WaitReady before issuing operations so startup
// never races the broker connection.
type Queue struct {
	redis  *redis.Client
	keys   *redis.KeyGenerator
	config configtypes.QueueConfig
	logger *zap.Logger
}

// Depths holds queue depth counters for health probes
type Depths struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
}

// New creates a queue bound to the configured name
func New(redisClient *redis.Client, cfg configtypes.QueueConfig, logger *zap.Logger) *Queue {
	return &Queue{
		redis:  redisClient,
		keys:   redis.NewKeyGenerator(),
		config: cfg,
		logger: logger,
	}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.config.Name
}

// WaitReady blocks until the broker answers a ping or the context expires.
// Must resolve before any enqueue/consume calls are issued.
func (q *Queue) WaitReady(ctx context.Context) error {
	backoff := 100 * time.Millisecond
	for {
		if err := q.redis.Ping(ctx); err == nil {
			q.logger.Debug("Queue broker ready", zap.String("queue", q.config.Name))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

// Enqueue durably persists a new job in waiting state and returns a handle
// usable to await its outcome.
func (q *Queue) Enqueue(ctx context.Context, name string, payload []byte, opts Options) (*JobHandle, error) {
	if name == "" {
		return nil, fmt.Errorf("job name is required")
	}

	attemptsAllowed := opts.AttemptsAllowed
	if attemptsAllowed == 0 {
		attemptsAllowed = q.config.AttemptsAllowed
	}
	processTimeout := opts.ProcessTimeout
	if processTimeout == 0 {
		processTimeout = time.Duration(q.config.ProcessTimeout)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:              runid.New(name),
		Name:            name,
		Payload:         payload,
		State:           StateWaiting,
		AttemptsMade:    0,
		AttemptsAllowed: attemptsAllowed,
		ProcessTimeout:  processTimeout,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := q.redis.HSet(ctx, q.keys.JobKey(q.config.Name, job.ID), job.fields()...); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := q.redis.LPush(ctx, q.keys.WaitingKey(q.config.Name), job.ID); err != nil {
		// Best effort: remove the orphaned record so retention isn't needed
		_ = q.redis.Del(ctx, q.keys.JobKey(q.config.Name, job.ID))
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		zap.String("queue", q.config.Name),
		zap.String("job_id", job.ID),
		zap.String("name", name),
		zap.Uint64("payload_fp", xxhash.Sum64(payload)),
		zap.Int("attempts_allowed", attemptsAllowed),
		zap.Duration("process_timeout", processTimeout))

	return &JobHandle{ID: job.ID, Name: name}, nil
}

// GetJob loads the current job record
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	fields, err := q.redis.HGetAll(ctx, q.keys.JobKey(q.config.Name, jobID))
	if err != nil {
		return nil, err
	}
	return jobFromFields(jobID, fields)
}

// GetResult fetches and decodes a completed job's artifact
func (q *Queue) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	raw, err := q.redis.Get(ctx, q.keys.ResultKey(q.config.Name, jobID))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: no result for job %s", ErrJobNotFound, jobID)
	}

	encoding, err := q.redis.HGet(ctx, q.keys.JobKey(q.config.Name, jobID), "result_encoding")
	if err != nil {
		return nil, err
	}

	return decompressResult([]byte(raw), encoding)
}

// Depths reports queue depth counters
func (q *Queue) Depths(ctx context.Context) (*Depths, error) {
	waiting, err := q.redis.LLen(ctx, q.keys.WaitingKey(q.config.Name))
	if err != nil {
		return nil, err
	}
	active, err := q.redis.LLen(ctx, q.keys.ActiveKey(q.config.Name))
	if err != nil {
		return nil, err
	}
	failed, err := q.redis.LLen(ctx, q.keys.FailedKey(q.config.Name))
	if err != nil {
		return nil, err
	}

	return &Depths{Waiting: waiting, Active: active, Failed: failed}, nil
}

// completeJob stores the result, marks the job completed, applies retention
// and publishes the terminal event
func (q *Queue) completeJob(ctx context.Context, job *Job, result []byte) error {
	stored, encoding, err := compressResult(result, q.config.ResultCompression)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	retention := time.Duration(q.config.ResultRetention)
	resultKey := q.keys.ResultKey(q.config.Name, job.ID)
	jobKey := q.keys.JobKey(q.config.Name, job.ID)

	// The result must be durable before the state flips: a reader that
	// observes completed state always finds the artifact
	if err := q.redis.Set(ctx, resultKey, stored, retention); err != nil {
		return err
	}

	if err := q.redis.HSet(ctx, jobKey,
		"state", string(StateCompleted),
		"result_encoding", encoding,
		"updated_at_ms", time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}

	// Completed records expire promptly to bound storage growth
	if err := q.redis.Expire(ctx, jobKey, retention); err != nil {
		return err
	}

	return q.publishEvent(ctx, event{JobID: job.ID, State: StateCompleted})
}

// failJob marks the job permanently failed, records it in the capped
// diagnostics list and publishes the terminal event
func (q *Queue) failJob(ctx context.Context, job *Job, jobErr error) error {
	jobKey := q.keys.JobKey(q.config.Name, job.ID)
	failedKey := q.keys.FailedKey(q.config.Name)

	if err := q.redis.HSet(ctx, jobKey,
		"state", string(StateFailed),
		"error", jobErr.Error(),
		"updated_at_ms", time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}

	// Keep a bounded number of failed jobs for diagnostics
	if err := q.redis.LPush(ctx, failedKey, job.ID); err != nil {
		return err
	}
	if q.config.FailedKeep > 0 {
		if err := q.redis.LTrim(ctx, failedKey, 0, int64(q.config.FailedKeep)-1); err != nil {
			return err
		}
	}

	if err := q.redis.Expire(ctx, jobKey, time.Duration(q.config.ResultRetention)); err != nil {
		return err
	}

	return q.publishEvent(ctx, event{JobID: job.ID, State: StateFailed, Error: jobErr.Error()})
}

// requeueJob transitions a failed attempt back to waiting for another try
func (q *Queue) requeueJob(ctx context.Context, job *Job, jobErr error) error {
	jobKey := q.keys.JobKey(q.config.Name, job.ID)

	if err := q.redis.HSet(ctx, jobKey,
		"state", string(StateWaiting),
		"error", jobErr.Error(),
		"updated_at_ms", time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}

	return q.redis.LPush(ctx, q.keys.WaitingKey(q.config.Name), job.ID)
}

func (q *Queue) publishEvent(ctx context.Context, ev event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}
	return q.redis.Publish(ctx, q.keys.EventChannel(q.config.Name, ev.JobID), data)
}

// LogFailureEvents subscribes to the queue's terminal events and logs
// failures until the context is cancelled. Observability only; it never
// alters retry behavior.
func (q *Queue) LogFailureEvents(ctx context.Context) {
	sub := q.redis.PSubscribe(ctx, q.keys.EventChannel(q.config.Name, "*"))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				q.logger.Warn("Unparseable job event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			if ev.State == StateFailed {
				q.logger.Error("Job failed permanently",
					zap.String("queue", q.config.Name),
					zap.String("job_id", ev.JobID),
					zap.String("error", ev.Error))
			}
		}
	}
}
