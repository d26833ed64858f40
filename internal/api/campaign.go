package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Pipeline is the orchestration surface the campaign handlers drive.
type Pipeline interface {
	CreateSession(ctx context.Context, brief domain.CampaignBrief) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	RunStage(ctx context.Context, sessionID string, stage domain.StageType) (*domain.Session, error)
	RunAll(ctx context.Context, sessionID string) (*domain.Session, error)
}

// CampaignHandler handles session and stage endpoints.
type CampaignHandler struct {
	pipeline Pipeline
}

// NewCampaignHandler creates a campaign handler.
func NewCampaignHandler(pipeline Pipeline) *CampaignHandler {
	return &CampaignHandler{pipeline: pipeline}
}

// RegisterRoutes registers campaign routes.
func (h *CampaignHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/campaigns", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{sessionID}", h.Get)
		r.Post("/{sessionID}/run", h.RunAll)
		r.Post("/{sessionID}/stages/{stage}", h.RunStage)
	})
}

// Create starts a new session from a campaign brief.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var brief domain.CampaignBrief
	if err := json.NewDecoder(r.Body).Decode(&brief); err != nil {
		Error(w, http.StatusBadRequest, "invalid brief payload")
		return
	}

	sess, err := h.pipeline.CreateSession(r.Context(), brief)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// List returns all sessions, newest first.
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.pipeline.ListSessions(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, sessions)
}

// Get returns one session with its interaction history.
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.pipeline.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// RunStage executes a single named stage for the session.
func (h *CampaignHandler) RunStage(w http.ResponseWriter, r *http.Request) {
	stage, err := domain.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.pipeline.RunStage(r.Context(), sessionID, stage)
	if err != nil {
		slog.Warn("stage run failed", "session_id", sessionID, "stage", stage, "error", err)
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// RunAll executes all four stages in order, stopping at the first failure.
func (h *CampaignHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.pipeline.RunAll(r.Context(), sessionID)
	if err != nil {
		slog.Warn("pipeline run failed", "session_id", sessionID, "error", err)
		WriteDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}
