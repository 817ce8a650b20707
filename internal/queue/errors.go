package queue

import "errors"

// Await errors - returned to callers waiting on a job outcome
var (
	// ErrResponseTimeout means the caller's wait elapsed. The job itself keeps
	// running to its terminal state in the background.
	ErrResponseTimeout = errors.New("response timeout exceeded")
	// ErrJobFailed means the job exhausted its attempts and failed permanently
	ErrJobFailed = errors.New("job failed")
	// ErrJobNotFound means no record exists for the job id (never enqueued, or
	// already past its retention window)
	ErrJobNotFound = errors.New("job not found")
)

// Consumer errors
var (
	ErrUnknownJobName = errors.New("no handler registered for job name")
	ErrNotReady       = errors.New("queue broker not ready")
)
