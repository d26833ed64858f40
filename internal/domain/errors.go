package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionBusy indicates another stage run already holds the session.
// Concurrent stage runs against one session are rejected rather than
// serialized so a stale read can never drop an earlier stage's result.
var ErrSessionBusy = errors.New("a stage run is already in progress for this session")

// RateLimitError is the typed, expected outcome of a denied admission.
// It is never retried internally; the caller decides whether to wait.
type RateLimitError struct {
	Category  string
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Category, e.ResetTime.Format(time.RFC3339))
}

// RetryAfter returns how long the caller should wait before retrying,
// measured from now.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// PreconditionError indicates a stage was invoked before its required
// upstream artifacts exist. This is a bug in the calling sequence, not a
// retryable condition.
type PreconditionError struct {
	Stage   StageType
	Missing []StageType
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("stage %q requires upstream artifacts %v", e.Stage, e.Missing)
}

// ParseError indicates the generation service returned text that does not
// match the stage's expected structured shape.
type ParseError struct {
	Stage StageType
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s artifact: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s artifact: %s", e.Stage, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ServiceError indicates the generation service kept failing transiently
// until the retry budget was exhausted.
type ServiceError struct {
	Stage    StageType
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service failed for stage %q after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// PersistenceError indicates the store failed to read, append, or update.
// A stage is never reported successful if its persistence write failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError indicates malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
