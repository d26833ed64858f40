// Package ratelimit implements per-category sliding-window admission
// control for expensive external calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// CategoryGeneration guards calls into the external generation service.
const CategoryGeneration = "generation-api"

// Config bounds one admission category.
type Config struct {
	MaxRequests int
	Window      time.Duration
	// RetryAfter is how long a blocked category stays blocked. Falls back
	// to Window when zero.
	RetryAfter time.Duration
}

// Validate checks the config constraints.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit: MaxRequests must be > 0, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("ratelimit: Window must be > 0, got %s", c.Window)
	}
	return nil
}

func (c Config) retryAfter() time.Duration {
	if c.RetryAfter > 0 {
		return c.RetryAfter
	}
	return c.Window
}

// Decision is the outcome of an admission check.
type Decision struct {
	CanProceed bool
	Remaining  int
	ResetTime  time.Time
	Reason     string
}

// Status is a read-only snapshot of one category, for monitoring.
type Status struct {
	Requests    int        `json:"requests"`
	MaxRequests int        `json:"max_requests"`
	Blocked     bool       `json:"blocked"`
	Remaining   int        `json:"remaining_requests"`
	ResetTime   *time.Time `json:"reset_time,omitempty"`
}

type categoryState struct {
	requests  []time.Time
	blocked   bool
	resetTime time.Time
}

// Limiter holds sliding-window state per category. It is the one piece of
// shared mutable state in the pipeline: every mutation happens under the
// mutex so two concurrent callers cannot both take the last slot.
//
// A Limiter is owned by the composition root and passed by reference, not
// reached through ambient globals.
type Limiter struct {
	mu         sync.Mutex
	categories map[string]*categoryState

	// now is injectable for deterministic tests.
	now func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		categories: make(map[string]*categoryState),
		now:        time.Now,
	}
}

func (l *Limiter) state(category string) *categoryState {
	st, ok := l.categories[category]
	if !ok {
		st = &categoryState{}
		l.categories[category] = st
	}
	return st
}

// prune drops request timestamps that fell out of the window.
func (st *categoryState) prune(now time.Time, window time.Duration) {
	kept := st.requests[:0]
	for _, ts := range st.requests {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	st.requests = kept
}

// decide runs the sliding-window algorithm. Caller must hold l.mu.
func (l *Limiter) decide(st *categoryState, cfg Config, now time.Time) Decision {
	st.prune(now, cfg.Window)

	if st.blocked && now.Before(st.resetTime) {
		return Decision{
			Remaining: 0,
			ResetTime: st.resetTime,
			Reason:    "rate limit exceeded",
		}
	}

	if len(st.requests) >= cfg.MaxRequests {
		st.blocked = true
		st.resetTime = now.Add(cfg.retryAfter())
		return Decision{
			Remaining: 0,
			ResetTime: st.resetTime,
			Reason:    "rate limit exceeded",
		}
	}

	if st.blocked {
		st.blocked = false
		st.resetTime = time.Time{}
	}

	return Decision{
		CanProceed: true,
		Remaining:  cfg.MaxRequests - len(st.requests),
	}
}

// Check runs the admission algorithm without reserving a slot. Admission is
// a normal, expected outcome either way; a denial is reported in the
// Decision, never as an error.
func (l *Limiter) Check(category string, cfg Config) (Decision, error) {
	if err := cfg.Validate(); err != nil {
		return Decision{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decide(l.state(category), cfg, l.now()), nil
}

// RecordSuccess counts an attempted call against the window. Only calls
// that were admitted and actually attempted are recorded; the limiter never
// records its own rejections.
func (l *Limiter) RecordSuccess(category string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(category)
	st.requests = append(st.requests, l.now())
}

// RecordFailure removes the most recently recorded timestamp so calls that
// failed for reasons unrelated to rate limiting do not count against quota.
func (l *Limiter) RecordFailure(category string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(category)
	if n := len(st.requests); n > 0 {
		st.requests = st.requests[:n-1]
	}
}

// Execute composes check, reserve, and rollback around op. The check and
// the slot reservation happen in one critical section, so concurrent
// callers contending for the last slot see exactly one admission. On a
// denial op is never invoked and a domain.RateLimitError is returned.
func (l *Limiter) Execute(ctx context.Context, category string, cfg Config, op func(context.Context) (string, error)) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	l.mu.Lock()
	st := l.state(category)
	d := l.decide(st, cfg, l.now())
	if d.CanProceed {
		st.requests = append(st.requests, l.now())
	}
	l.mu.Unlock()

	if !d.CanProceed {
		return "", &domain.RateLimitError{Category: category, ResetTime: d.ResetTime}
	}

	out, err := op(ctx)
	if err != nil {
		l.RecordFailure(category)
		return "", err
	}
	return out, nil
}

// Status returns a side-effect-free snapshot of one category.
func (l *Limiter) Status(category string, cfg Config) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.categories[category]
	if !ok {
		return Status{MaxRequests: cfg.MaxRequests, Remaining: cfg.MaxRequests}
	}

	active := 0
	for _, ts := range st.requests {
		if now.Sub(ts) < cfg.Window {
			active++
		}
	}

	s := Status{
		Requests:    active,
		MaxRequests: cfg.MaxRequests,
		Blocked:     st.blocked && now.Before(st.resetTime),
		Remaining:   cfg.MaxRequests - active,
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if s.Blocked {
		rt := st.resetTime
		s.ResetTime = &rt
	}
	return s
}

// Reset clears state for the named categories, or all categories when none
// are given. Operational escape hatch; the pipeline itself never calls it.
func (l *Limiter) Reset(categories ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(categories) == 0 {
		l.categories = make(map[string]*categoryState)
		return
	}
	for _, c := range categories {
		delete(l.categories, c)
	}
}
