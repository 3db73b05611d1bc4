package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/globetalk/matchmaking/internal/apperr"
)

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps an apperr classification to a status code and a
// user-facing message.
func respondDomainError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[api] %d: %v", status, err)
	}
	respondError(w, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, apperr.ErrAlreadyPenpals):
		return http.StatusConflict, "You are already penpals"
	case errors.Is(err, apperr.ErrRequestAlreadyPending):
		return http.StatusConflict, "A request is already pending between these users"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "The request changed, please try again"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, apperr.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
