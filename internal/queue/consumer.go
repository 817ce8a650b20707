package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job attempt and returns the result artifact.
// A non-nil error counts as a failed attempt.
type Handler func(ctx context.Context, job *Job) ([]byte, error)

const popTimeout = time.Second

// Consumer pulls jobs off the waiting list and runs registered handlers on a
// fixed number of concurrent loops. One consumer per worker process.
type Consumer struct {
	queue       *Queue
	concurrency int
	logger      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	wg sync.WaitGroup
}

// NewConsumer creates a consumer with the given concurrency. Concurrency is
// typically sized to the browser pool so every loop can hold a handle.
func NewConsumer(queue *Queue, concurrency int, logger *zap.Logger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		queue:       queue,
		concurrency: concurrency,
		logger:      logger,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a job name. Must be called before Run.
func (c *Consumer) Register(name string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = handler
}

func (c *Consumer) handler(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Run starts the consume loops and blocks until the context is cancelled and
// all in-flight jobs have finished their current attempt.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.queue.WaitReady(ctx); err != nil {
		return err
	}

	c.logger.Info("Consumer started",
		zap.String("queue", c.queue.Name()),
		zap.Int("concurrency", c.concurrency))

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go func(loop int) {
			defer c.wg.Done()
			c.consumeLoop(ctx, loop)
		}(i)
	}

	c.wg.Wait()
	c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name()))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, loop int) {
	waitingKey := c.queue.keys.WaitingKey(c.queue.Name())

	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := c.queue.redis.BRPop(ctx, popTimeout, waitingKey)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to pop job",
				zap.String("queue", c.queue.Name()),
				zap.Int("loop", loop),
				zap.Error(err))
			time.Sleep(popTimeout)
			continue
		}
		if jobID == "" {
			continue
		}

		// The attempt and its state writes run detached from the loop
		// context: shutdown stops popping new jobs but must never strand a
		// popped job in active state with no path back to waiting. The
		// process timeout still bounds the handler.
		c.processJob(context.WithoutCancel(ctx), jobID)
	}
}

// processJob runs one attempt of one job through its full lifecycle
func (c *Consumer) processJob(ctx context.Context, jobID string) {
	job, err := c.queue.GetJob(ctx, jobID)
	if err != nil {
		// The record may have expired between pop and load; nothing to do
		c.logger.Warn("Popped job has no record",
			zap.String("queue", c.queue.Name()),
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}

	activeKey := c.queue.keys.ActiveKey(c.queue.Name())
	jobKey := c.queue.keys.JobKey(c.queue.Name(), jobID)

	if err := c.queue.redis.HSet(ctx, jobKey,
		"state", string(StateActive),
		"updated_at_ms", time.Now().UTC().UnixMilli(),
	); err != nil {
		c.logger.Error("Failed to mark job active", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	attempts, err := c.queue.redis.HIncrBy(ctx, jobKey, "attempts_made", 1)
	if err != nil {
		c.logger.Error("Failed to count attempt", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	job.State = StateActive
	job.AttemptsMade = int(attempts)

	if err := c.queue.redis.LPush(ctx, activeKey, jobID); err != nil {
		c.logger.Warn("Failed to track active job", zap.String("job_id", jobID), zap.Error(err))
	}
	defer func() {
		if err := c.queue.redis.LRem(ctx, activeKey, 1, jobID); err != nil {
			c.logger.Warn("Failed to untrack active job", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	started := time.Now()
	result, attemptErr := c.runHandler(ctx, job)
	elapsed := time.Since(started)

	if attemptErr == nil {
		if err := c.queue.completeJob(ctx, job, result); err != nil {
			c.logger.Error("Failed to record job completion",
				zap.String("job_id", jobID),
				zap.Error(err))
			return
		}
		c.logger.Info("Job completed",
			zap.String("queue", c.queue.Name()),
			zap.String("job_id", jobID),
			zap.String("name", job.Name),
			zap.Int("attempt", job.AttemptsMade),
			zap.Duration("duration", elapsed))
		return
	}

	c.logger.Warn("Job attempt failed",
		zap.String("queue", c.queue.Name()),
		zap.String("job_id", jobID),
		zap.String("name", job.Name),
		zap.Int("attempt", job.AttemptsMade),
		zap.Int("attempts_allowed", job.AttemptsAllowed),
		zap.Duration("duration", elapsed),
		zap.Error(attemptErr))

	// Retrying a name nobody handles can never succeed
	if job.AttemptsMade < job.AttemptsAllowed && !errors.Is(attemptErr, ErrUnknownJobName) {
		if err := c.queue.requeueJob(ctx, job, attemptErr); err != nil {
			c.logger.Error("Failed to requeue job",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
		return
	}

	if err := c.queue.failJob(ctx, job, attemptErr); err != nil {
		c.logger.Error("Failed to record job failure",
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

// runHandler executes the registered handler under the job's process timeout.
// A panicking handler is contained here and counted as a failed attempt so one
// bad job never takes the other consume loops down with it.
func (c *Consumer) runHandler(ctx context.Context, job *Job) (result []byte, err error) {
	handler, ok := c.handler(job.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobName, job.Name)
	}

	attemptCtx := ctx
	if job.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, job.ProcessTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panicked",
				zap.String("queue", c.queue.Name()),
				zap.String("job_id", job.ID),
				zap.String("name", job.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = handler(attemptCtx, job)
	if err != nil {
		return nil, err
	}
	if attemptCtx.Err() != nil {
		return nil, fmt.Errorf("job processing timed out after %v", job.ProcessTimeout)
	}
	return result, nil
}
