package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/learning"
	"github.com/go-chi/chi/v5"
)

// FeedbackSink records user reactions to suggestions.
type FeedbackSink interface {
	Record(ctx context.Context, req learning.RecordRequest) (*domain.FeedbackEvent, error)
}

// FeedbackHandler handles feedback endpoints.
type FeedbackHandler struct {
	recorder FeedbackSink
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(recorder FeedbackSink) *FeedbackHandler {
	return &FeedbackHandler{recorder: recorder}
}

// RegisterRoutes registers feedback routes.
func (h *FeedbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/feedback", h.Record)
}

// Record persists one feedback event. The learning update it triggers is
// asynchronous; this endpoint reports only whether the event was recorded.
func (h *FeedbackHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req learning.RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid feedback payload")
		return
	}

	ev, err := h.recorder.Record(r.Context(), req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, ev)
}
