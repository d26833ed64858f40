// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// Repository defines the interface for persisting pipeline state: sessions,
// feedback events, and learned patterns. Implementations wrap failures in
// domain.PersistenceError.
type Repository interface {
	// CreateSession persists a new session in its initial state.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session with its full interaction history.
	// Returns domain.ErrSessionNotFound if no such session exists.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions retrieves all sessions ordered by creation time,
	// newest first, without interaction histories.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// UpdateSessionStatus sets the session status.
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error

	// AppendStageResult atomically appends one interaction-history entry,
	// applies the entry's artifact to the generated campaign, and sets the
	// session status. Either all three land or none do.
	AppendStageResult(ctx context.Context, sessionID string, entry domain.InteractionEntry, status domain.SessionStatus) error

	// InsertFeedback appends one feedback event. Events are never updated.
	InsertFeedback(ctx context.Context, ev *domain.FeedbackEvent) error

	// ListPatterns retrieves all learned patterns for an agent type.
	ListPatterns(ctx context.Context, agentType domain.StageType) ([]domain.LearnedPattern, error)

	// UpsertPattern creates or replaces a learned pattern.
	UpsertPattern(ctx context.Context, p *domain.LearnedPattern) error

	// IncrementPatternUsage bumps usage_count and last_updated for one
	// pattern. Usage only ever increases.
	IncrementPatternUsage(ctx context.Context, id string, now time.Time) error

	// UpdatePatternStats writes recomputed learning stats for one pattern.
	// The write is conditional on the usage count the stats were computed
	// from, so two concurrent feedback updates cannot interleave partially.
	UpdatePatternStats(ctx context.Context, id string, expectedUsage int, usageCount int, successRate, confidence float64, now time.Time) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying store.
	Close() error
}
