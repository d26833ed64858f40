package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	l := New()
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestSlidingWindowAdmitsUpToMaxThenBlocks(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter()
	cfg := Config{MaxRequests: 5, Window: time.Second}

	for i := 0; i < 5; i++ {
		d, err := l.Check("generation-api", cfg)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !d.CanProceed {
			t.Fatalf("call %d should have been admitted", i+1)
		}
		if d.Remaining != 5-i {
			t.Errorf("call %d: expected remaining %d, got %d", i+1, 5-i, d.Remaining)
		}
		l.RecordSuccess("generation-api")
		clock.Advance(10 * time.Millisecond)
	}

	d, err := l.Check("generation-api", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.CanProceed {
		t.Fatal("sixth call within the window should have been rejected")
	}
	if d.ResetTime.IsZero() {
		t.Fatal("rejection should carry a reset time")
	}

	// After the reset time elapses the category admits again.
	clock.Advance(cfg.Window + time.Millisecond)
	d, err = l.Check("generation-api", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !d.CanProceed {
		t.Fatal("call after reset time should have been admitted")
	}
}

func TestFailedCallsDoNotCountAgainstQuota(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 3, Window: time.Second}

	l.RecordSuccess("generation-api")
	before, err := l.Check("generation-api", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	l.RecordSuccess("generation-api")
	l.RecordFailure("generation-api")

	after, err := l.Check("generation-api", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if after.Remaining != before.Remaining {
		t.Fatalf("failed attempt changed remaining: before=%d after=%d", before.Remaining, after.Remaining)
	}
}

func TestExecuteRejectsWithTypedError(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}

	if _, err := l.Execute(context.Background(), "generation-api", cfg, op); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	_, err := l.Execute(context.Background(), "generation-api", cfg, op)
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Category != "generation-api" {
		t.Errorf("unexpected category %q", rle.Category)
	}
	if calls != 1 {
		t.Fatalf("op should not run on rejection, ran %d times", calls)
	}
}

func TestExecuteRollsBackSlotOnOperationFailure(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	boom := errors.New("upstream unreachable")
	_, err := l.Execute(context.Background(), "generation-api", cfg, func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected op error to propagate, got %v", err)
	}

	// The slot was rolled back, so the next call is still admitted.
	out, err := l.Execute(context.Background(), "generation-api", cfg, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute after rollback failed: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExecuteSingleSlotUnderContention(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	const workers = 16
	var admitted, rejected int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Execute(context.Background(), "generation-api", cfg, func(context.Context) (string, error) {
				return "ok", nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("exactly one worker should win the last slot, got %d", admitted)
	}
	if rejected != workers-1 {
		t.Fatalf("expected %d rejections, got %d", workers-1, rejected)
	}
}

func TestStatusIsSideEffectFree(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 2, Window: time.Second}
	l.RecordSuccess("generation-api")

	s1 := l.Status("generation-api", cfg)
	s2 := l.Status("generation-api", cfg)
	if s1 != s2 {
		t.Fatalf("status changed between reads: %+v vs %+v", s1, s2)
	}
	if s1.Requests != 1 || s1.Remaining != 1 {
		t.Fatalf("unexpected status %+v", s1)
	}
}

func TestResetClearsCategoryState(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	cfg := Config{MaxRequests: 1, Window: time.Minute}
	l.RecordSuccess("generation-api")
	l.RecordSuccess("auth-attempt")

	l.Reset("generation-api")

	d, err := l.Check("generation-api", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !d.CanProceed {
		t.Fatal("reset category should admit")
	}

	d, err = l.Check("auth-attempt", cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.CanProceed {
		t.Fatal("other category should be untouched by a scoped reset")
	}
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter()
	if _, err := l.Check("generation-api", Config{MaxRequests: 0, Window: time.Second}); err == nil {
		t.Fatal("expected error for MaxRequests=0")
	}
	if _, err := l.Check("generation-api", Config{MaxRequests: 1}); err == nil {
		t.Fatal("expected error for zero window")
	}
}
