package api

import (
	"net/http"

	"github.com/copilotlabs/campaign-copilot/internal/ratelimit"
	"github.com/go-chi/chi/v5"
)

// LimitHandler exposes read-only rate-limiter status for monitoring and
// the UI's retry-after display.
type LimitHandler struct {
	limiter *ratelimit.Limiter
	cfg     ratelimit.Config
}

// NewLimitHandler creates a limit handler for the generation category.
func NewLimitHandler(limiter *ratelimit.Limiter, cfg ratelimit.Config) *LimitHandler {
	return &LimitHandler{limiter: limiter, cfg: cfg}
}

// RegisterRoutes registers limiter routes.
func (h *LimitHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/limits/{category}", h.Status)
}

// Status returns the current window state for a category. Side-effect-free.
func (h *LimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	JSON(w, http.StatusOK, h.limiter.Status(category, h.cfg))
}
