// Package handler exposes the HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, service.ErrSessionNotRunning):
		writeError(w, http.StatusConflict, "session is not running")
	case errors.Is(err, service.ErrConfigurationMissing):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrModelCallFailed):
		writeError(w, http.StatusBadGateway, "model call failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
