// Package learning turns user feedback into ranked generation patterns.
package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/store"
	"github.com/google/uuid"
)

// baselinePatterns seed learning state per agent type so the first stage
// runs have a prior to work from before any feedback exists.
var baselinePatterns = map[domain.StageType]string{
	domain.StageAudience:        "ground personas in the brief's stated target audience and pain points",
	domain.StageChannel:         "weight the channel mix toward channels the brief already names",
	domain.StageMessaging:       "anchor messaging pillars on the brief's key messages and goals",
	domain.StageContentCalendar: "pace the calendar to the brief's timeline and primary channel cadence",
}

// PatternStore persists and ranks learned patterns per agent type.
type PatternStore struct {
	repo store.Repository
	now  func() time.Time
}

// NewPatternStore creates a pattern store over the repository.
func NewPatternStore(repo store.Repository) *PatternStore {
	return &PatternStore{repo: repo, now: time.Now}
}

// Seed inserts the baseline pattern for each agent type that has none yet.
// Called once at startup; existing learning state is never overwritten.
func (s *PatternStore) Seed(ctx context.Context) error {
	for agentType, data := range baselinePatterns {
		existing, err := s.repo.ListPatterns(ctx, agentType)
		if err != nil {
			return fmt.Errorf("seed patterns for %s: %w", agentType, err)
		}
		if len(existing) > 0 {
			continue
		}
		now := s.now().UTC()
		p := &domain.LearnedPattern{
			ID:              uuid.NewString(),
			AgentType:       agentType,
			PatternData:     data,
			UsageCount:      0,
			SuccessRate:     0.5,
			ConfidenceScore: 0.5,
			LastUpdated:     now,
			CreatedAt:       now,
		}
		if err := s.repo.UpsertPattern(ctx, p); err != nil {
			return fmt.Errorf("seed patterns for %s: %w", agentType, err)
		}
	}
	return nil
}

// TopPatterns returns up to limit patterns for the agent type, ranked by
// confidence descending, then usage count descending, then last-updated
// descending. The ordering is deterministic for identical data.
func (s *PatternStore) TopPatterns(ctx context.Context, agentType domain.StageType, limit int) ([]domain.LearnedPattern, error) {
	patterns, err := s.repo.ListPatterns(ctx, agentType)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.LastUpdated.After(b.LastUpdated)
	})

	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// RecordUsage increments the pattern's usage count. Side-effect only; it
// never changes confidence.
func (s *PatternStore) RecordUsage(ctx context.Context, patternID string) error {
	return s.repo.IncrementPatternUsage(ctx, patternID, s.now().UTC())
}

// ApplyFeedback folds one feedback event into the most relevant pattern for
// the agent type using an incremental moving average. Approvals pull the
// success rate toward 1, rejections toward 0, edits and regenerations
// toward 0.5. Recent feedback is weighted without discarding history.
func (s *PatternStore) ApplyFeedback(ctx context.Context, agentType domain.StageType, ev domain.FeedbackEvent) error {
	patterns, err := s.TopPatterns(ctx, agentType, 0)
	if err != nil {
		return err
	}

	var target *domain.LearnedPattern
	if len(patterns) > 0 {
		target = &patterns[0]
	} else {
		// Cold start: feedback arrived before any pattern existed.
		now := s.now().UTC()
		target = &domain.LearnedPattern{
			ID:              uuid.NewString(),
			AgentType:       agentType,
			PatternData:     baselinePatterns[agentType],
			UsageCount:      0,
			SuccessRate:     0.5,
			ConfidenceScore: 0.5,
			LastUpdated:     now,
			CreatedAt:       now,
		}
		if err := s.repo.UpsertPattern(ctx, target); err != nil {
			return err
		}
	}

	outcome := ev.Outcome()
	successRate := target.SuccessRate + (outcome-target.SuccessRate)/float64(target.UsageCount+1)
	// Confidence tracks the success rate but moves half as fast, so one
	// loud rejection cannot erase an established pattern.
	confidence := target.ConfidenceScore + (successRate-target.ConfidenceScore)/2

	return s.repo.UpdatePatternStats(ctx,
		target.ID,
		target.UsageCount,
		target.UsageCount+1,
		successRate,
		confidence,
		s.now().UTC(),
	)
}
