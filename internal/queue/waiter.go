package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AwaitResult blocks until the job reaches a terminal state or responseTimeout
// elapses, whichever settles first. The timeout governs only this caller's
// wait: an in-flight render keeps running to completion or failure in the
// background, and its result may end up with no reader.
//
// Multiple concurrent waiters on the same handle each receive the identical
// result once rendering completes.
func (q *Queue) AwaitResult(ctx context.Context, handle *JobHandle, responseTimeout time.Duration) ([]byte, error) {
	if handle == nil || handle.ID == "" {
		return nil, fmt.Errorf("job handle is required")
	}
	if responseTimeout <= 0 {
		responseTimeout = time.Duration(q.config.ResponseTimeout)
	}

	// Subscribe before reading the current state so a terminal event published
	// between the read and the wait can't be lost.
	sub := q.redis.Subscribe(ctx, q.keys.EventChannel(q.config.Name, handle.ID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to job events: %w", err)
	}
	events := sub.Channel()

	job, err := q.GetJob(ctx, handle.ID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return q.resolveTerminal(ctx, handle.ID, job.State, job.LastError)
	}

	timer := time.NewTimer(responseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			q.logger.Warn("Caller wait timed out, job continues in background",
				zap.String("queue", q.config.Name),
				zap.String("job_id", handle.ID),
				zap.Duration("response_timeout", responseTimeout))
			return nil, fmt.Errorf("%w: job %s after %v", ErrResponseTimeout, handle.ID, responseTimeout)

		case msg, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("event subscription closed for job %s", handle.ID)
			}

			var ev event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				q.logger.Warn("Unparseable job event while waiting",
					zap.String("job_id", handle.ID),
					zap.Error(err))
				continue
			}
			if !ev.State.Terminal() {
				continue
			}
			return q.resolveTerminal(ctx, handle.ID, ev.State, ev.Error)
		}
	}
}

// resolveTerminal turns a terminal state into the caller-visible outcome
func (q *Queue) resolveTerminal(ctx context.Context, jobID string, state State, errMsg string) ([]byte, error) {
	switch state {
	case StateCompleted:
		return q.GetResult(ctx, jobID)
	case StateFailed:
		return nil, fmt.Errorf("%w: job %s: %s", ErrJobFailed, jobID, errMsg)
	default:
		return nil, fmt.Errorf("job %s in unexpected state %q", jobID, state)
	}
}
