package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("job already running")

	// ErrNoDetector is returned by Start when the job has no detector.
	ErrNoDetector = errors.New("no detector configured")

	// ErrTimeout is the cause of a run that exceeded its deadline.
	ErrTimeout = errors.New("job timed out")
)

// JobError describes a failed run.
type JobError struct {
	Reason string
	Err    error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return "job failed: " + e.Reason
	}
	return fmt.Sprintf("job failed: %s: %v", e.Reason, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
