// Package generation wraps the external generation service behind a small
// client interface with typed failure modes.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// Prompt is the context handed to the generation service for one stage run.
type Prompt struct {
	Stage  domain.StageType
	System string
	User   string
}

// Client is the external generation service: best-effort structured-text
// generation. Shape validation happens in the stage agent, not here.
type Client interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// ErrServiceUnavailable indicates the service could not be reached.
var ErrServiceUnavailable = errors.New("generation service unavailable")

// ErrServiceTimeout indicates the request exceeded its deadline.
var ErrServiceTimeout = errors.New("generation service timed out")

// StatusError is a non-2xx response from the generation service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d", e.Code)
}

// IsTransient reports whether the error is worth retrying with backoff:
// timeouts, unreachable service, and 5xx responses. 4xx responses and
// anything else will recur and are surfaced immediately.
func IsTransient(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrServiceTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return false
}
