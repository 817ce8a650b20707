package queue

import (
	"fmt"
	"strconv"
	"time"
)

// State is a job's position in its lifecycle. Transitions are monotonic:
// waiting -> active -> {completed | failed}, with active -> waiting allowed
// only through the queue's own retry requeue.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is one of the two terminal states
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one rendering request. The queue exclusively owns job records;
// workers observe and transition state only through queue operations.
type Job struct {
	ID              string
	Name            string
	Payload         []byte // Immutable once enqueued
	State           State
	AttemptsMade    int
	AttemptsAllowed int
	ProcessTimeout  time.Duration
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Options control per-job behavior at enqueue time. Zero values fall back to
// the queue's configured defaults.
type Options struct {
	AttemptsAllowed int
	ProcessTimeout  time.Duration
}

// JobHandle is returned by Enqueue and identifies a job to AwaitResult
type JobHandle struct {
	ID   string
	Name string
}

// fields encodes the job as Redis hash fields
func (j *Job) fields() []interface{} {
	return []interface{}{
		"name", j.Name,
		"payload", string(j.Payload),
		"state", string(j.State),
		"attempts_made", j.AttemptsMade,
		"attempts_allowed", j.AttemptsAllowed,
		"process_timeout_ms", j.ProcessTimeout.Milliseconds(),
		"created_at_ms", j.CreatedAt.UnixMilli(),
		"updated_at_ms", j.UpdatedAt.UnixMilli(),
		"error", j.LastError,
	}
}

// jobFromFields decodes a Redis hash into a Job
func jobFromFields(id string, fields map[string]string) (*Job, error) {
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	attemptsMade, err := strconv.Atoi(fields["attempts_made"])
	if err != nil {
		return nil, fmt.Errorf("invalid job record %s: bad attempts_made: %w", id, err)
	}
	attemptsAllowed, err := strconv.Atoi(fields["attempts_allowed"])
	if err != nil {
		return nil, fmt.Errorf("invalid job record %s: bad attempts_allowed: %w", id, err)
	}
	timeoutMs, err := strconv.ParseInt(fields["process_timeout_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job record %s: bad process_timeout_ms: %w", id, err)
	}
	createdMs, err := strconv.ParseInt(fields["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job record %s: bad created_at_ms: %w", id, err)
	}
	updatedMs, err := strconv.ParseInt(fields["updated_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job record %s: bad updated_at_ms: %w", id, err)
	}

	return &Job{
		ID:              id,
		Name:            fields["name"],
		Payload:         []byte(fields["payload"]),
		State:           State(fields["state"]),
		AttemptsMade:    attemptsMade,
		AttemptsAllowed: attemptsAllowed,
		ProcessTimeout:  time.Duration(timeoutMs) * time.Millisecond,
		LastError:       fields["error"],
		CreatedAt:       time.UnixMilli(createdMs).UTC(),
		UpdatedAt:       time.UnixMilli(updatedMs).UTC(),
	}, nil
}

// event is the pubsub message published when a job reaches a terminal state
type event struct {
	JobID string `json:"job_id"`
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}
