package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/store"
	"github.com/google/uuid"
)

// applyTimeout bounds the background learning update per event.
const applyTimeout = 10 * time.Second

// RecordRequest is the caller-facing input for recording feedback.
type RecordRequest struct {
	Type               domain.InteractionType `json:"interaction_type"`
	OriginalSuggestion string                 `json:"original_suggestion"`
	UserModification   string                 `json:"user_modification,omitempty"`
	Context            domain.FeedbackContext `json:"context_data"`
	Score              *int                   `json:"feedback_score,omitempty"`
}

// Recorder is the entry point through which user reactions become feedback
// events and drive learning. Recording is synchronous; the pattern update
// it triggers is asynchronous and best-effort. Learning lag is acceptable,
// losing a recorded feedback event is not.
type Recorder struct {
	repo     store.Repository
	patterns *PatternStore
	logger   *slog.Logger
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewRecorder creates a feedback recorder.
func NewRecorder(repo store.Repository, patterns *PatternStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:     repo,
		patterns: patterns,
		logger:   logger,
		now:      time.Now,
	}
}

// Record validates and persists one feedback event, then dispatches the
// learning update in the background. The returned event is final once this
// call succeeds, regardless of whether the learning update later fails.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*domain.FeedbackEvent, error) {
	interactionType := req.Type
	if req.Score != nil {
		score := *req.Score
		if score < 1 || score > 5 {
			return nil, &domain.ValidationError{Msg: "feedback_score must be between 1 and 5"}
		}
		interactionType = domain.DeriveInteraction(score)
	}
	if !domain.ValidInteraction(interactionType) {
		return nil, &domain.ValidationError{Msg: "unknown interaction_type"}
	}
	if interactionType == domain.InteractionEdit && req.UserModification == "" {
		return nil, &domain.ValidationError{Msg: "user_modification is required for edit feedback"}
	}
	if interactionType != domain.InteractionEdit && req.UserModification != "" {
		return nil, &domain.ValidationError{Msg: "user_modification is only valid for edit feedback"}
	}
	if !domain.ValidStage(req.Context.AgentType) {
		return nil, &domain.ValidationError{Msg: "context_data.agent_type must name a pipeline stage"}
	}
	if req.OriginalSuggestion == "" {
		return nil, &domain.ValidationError{Msg: "original_suggestion is required"}
	}

	ev := &domain.FeedbackEvent{
		ID:                 uuid.NewString(),
		Type:               interactionType,
		OriginalSuggestion: req.OriginalSuggestion,
		UserModification:   req.UserModification,
		Context:            req.Context,
		Score:              req.Score,
		CreatedAt:          r.now().UTC(),
	}

	if err := r.repo.InsertFeedback(ctx, ev); err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		applyCtx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		defer cancel()
		if err := r.patterns.ApplyFeedback(applyCtx, ev.Context.AgentType, *ev); err != nil {
			r.logger.Warn("learning update failed",
				"feedback_id", ev.ID,
				"agent_type", ev.Context.AgentType,
				"error", err)
		}
	}()

	return ev, nil
}

// Close waits for in-flight learning updates to drain.
func (r *Recorder) Close() {
	r.wg.Wait()
}
