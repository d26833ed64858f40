// Package pipeline sequences the four generation stages that build a
// campaign: audience, channel, messaging, content-calendar.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/generation"
	"github.com/copilotlabs/campaign-copilot/internal/learning"
	"github.com/copilotlabs/campaign-copilot/internal/ratelimit"
)

// AgentConfig bounds one stage agent's external calls.
type AgentConfig struct {
	// MaxRetries is the number of additional attempts after the first,
	// for transient service failures only.
	MaxRetries int
	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration
	// PatternLimit is how many ranked patterns feed the prompt.
	PatternLimit int
	// RateLimit bounds the shared generation-api category.
	RateLimit ratelimit.Config
}

// DefaultAgentConfig returns the stage agent defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		PatternLimit: 5,
		RateLimit: ratelimit.Config{
			MaxRequests: 30,
			Window:      time.Minute,
		},
	}
}

// StageAgent produces one artifact per run from the session brief, the
// upstream artifacts, and the top-ranked learned patterns for its stage.
// All four stage variants share this shape; only the stage type, prompt,
// and parse target differ.
type StageAgent struct {
	stage    domain.StageType
	client   generation.Client
	patterns *learning.PatternStore
	limiter  *ratelimit.Limiter
	cfg      AgentConfig
	logger   *slog.Logger
}

// NewStageAgent creates the agent for one stage.
func NewStageAgent(stage domain.StageType, client generation.Client, patterns *learning.PatternStore, limiter *ratelimit.Limiter, cfg AgentConfig, logger *slog.Logger) *StageAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageAgent{
		stage:    stage,
		client:   client,
		patterns: patterns,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Stage returns the agent's stage type.
func (a *StageAgent) Stage() domain.StageType { return a.stage }

// Run produces one artifact for the session. Preconditions are checked
// before any quota or external call is spent. Transient service failures
// are retried with backoff; rate-limit denials and shape mismatches are
// surfaced immediately.
func (a *StageAgent) Run(ctx context.Context, session *domain.Session) (*domain.StageArtifact, error) {
	if missing := domain.MissingUpstream(&session.Campaign, a.stage); len(missing) > 0 {
		return nil, &domain.PreconditionError{Stage: a.stage, Missing: missing}
	}

	patterns, err := a.patterns.TopPatterns(ctx, a.stage, a.cfg.PatternLimit)
	if err != nil {
		// Degrade to an un-primed prompt rather than blocking the stage:
		// learning is advisory, generation is the product.
		a.logger.Warn("pattern lookup failed, running without priors",
			"stage", a.stage, "session_id", session.ID, "error", err)
		patterns = nil
	}

	prompt, err := generation.BuildPrompt(a.stage, session.Brief, &session.Campaign, patterns)
	if err != nil {
		return nil, err
	}

	raw, err := a.invokeWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	artifact, err := domain.ParseArtifact(a.stage, raw)
	if err != nil {
		// A malformed response usually means a prompt/shape problem that
		// will recur, so it is not retried.
		return nil, err
	}

	for _, p := range patterns {
		if usageErr := a.patterns.RecordUsage(ctx, p.ID); usageErr != nil {
			a.logger.Warn("failed to record pattern usage",
				"stage", a.stage, "pattern_id", p.ID, "error", usageErr)
		}
	}

	a.logger.Info("stage artifact generated",
		"stage", a.stage,
		"session_id", session.ID,
		"confidence", artifact.Confidence,
		"patterns_used", len(patterns))
	return artifact, nil
}

// invokeWithRetry runs the guarded generation call, retrying transient
// failures up to the configured budget. Rate-limit denials pass through
// untouched: waiting out the window is the caller's decision.
func (a *StageAgent) invokeWithRetry(ctx context.Context, prompt generation.Prompt) (string, error) {
	backoff := a.cfg.RetryBackoff
	attempts := a.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := a.limiter.Execute(ctx, ratelimit.CategoryGeneration, a.cfg.RateLimit, func(ctx context.Context) (string, error) {
			return a.client.Invoke(ctx, prompt)
		})
		if err == nil {
			return raw, nil
		}

		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			return "", err
		}
		if !generation.IsTransient(err) {
			return "", err
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		a.logger.Warn("transient generation failure, backing off",
			"stage", a.stage, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}

	return "", &domain.ServiceError{Stage: a.stage, Attempts: attempts, Err: lastErr}
}
