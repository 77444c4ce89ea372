package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/pkg/logger"
)

// OpsHandler exposes operator utilities for checking an assistant's broker
// wiring before putting a session in front of an audience.
type OpsHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewOpsHandler creates a new ops handler.
func NewOpsHandler(sessions *service.SessionService, log *logger.Logger) *OpsHandler {
	return &OpsHandler{sessions: sessions, logger: log}
}

// BrokerTestRequest identifies the assistant whose broker to probe.
type BrokerTestRequest struct {
	AssistantID string `json:"assistant_id"`
}

// TestBroker handles POST /api/v1/ops/mqtt/test.
func (h *OpsHandler) TestBroker(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req BrokerTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !middleware.ValidUUID(req.AssistantID) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	res, err := h.sessions.TestBroker(r.Context(), userID, req.AssistantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PublishRequest carries an arbitrary value for a manual publish to an
// assistant's topic.
type PublishRequest struct {
	AssistantID string `json:"assistant_id"`
	Value       any    `json:"value"`
}

// Publish handles POST /api/v1/ops/mqtt/publish.
func (h *OpsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !middleware.ValidUUID(req.AssistantID) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	res, err := h.sessions.PublishManual(r.Context(), userID, req.AssistantID, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
