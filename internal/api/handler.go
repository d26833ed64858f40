// Package api provides HTTP handlers for the campaign co-pilot API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteDomainError maps the pipeline error taxonomy onto HTTP statuses.
// Every response carries an explicit reason; rate-limit denials also carry
// the retry-after hint.
func WriteDomainError(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":      err.Error(),
			"reset_time": rle.ResetTime,
		})
		return
	}

	var (
		pre   *domain.PreconditionError
		parse *domain.ParseError
		svc   *domain.ServiceError
		per   *domain.PersistenceError
		val   *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionBusy):
		Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &pre):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &val):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &parse), errors.As(err, &svc):
		Error(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &per):
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
