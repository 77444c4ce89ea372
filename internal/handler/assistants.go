package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/pkg/logger"
)

// AssistantHandler handles assistant configuration endpoints. All routes
// here require an authenticated owner.
type AssistantHandler struct {
	assistants *service.AssistantService
	sessions   *service.SessionService
	logger     *logger.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(assistants *service.AssistantService, sessions *service.SessionService, log *logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistants: assistants,
		sessions:   sessions,
		logger:     log,
	}
}

// List handles GET /api/v1/assistants.
func (h *AssistantHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	assistants, err := h.assistants.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assistants": assistants})
}

// Create handles POST /api/v1/assistants.
func (h *AssistantHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.CreateAssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	a, err := h.assistants.Create(r.Context(), userID, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Get handles GET /api/v1/assistants/{id}.
func (h *AssistantHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	a, err := h.assistants.Get(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Update handles PATCH /api/v1/assistants/{id}.
func (h *AssistantHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	var req model.UpdateAssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.assistants.Update(r.Context(), userID, id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Delete handles DELETE /api/v1/assistants/{id}.
func (h *AssistantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	if err := h.assistants.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/v1/assistants/{id}/messages, the owner's audit
// view across every session and thread.
func (h *AssistantHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	rows, err := h.assistants.Messages(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": rows})
}

// MQTTLog handles GET /api/v1/assistants/{id}/mqtt-log.
func (h *AssistantHandler) MQTTLog(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	entries, err := h.assistants.MQTTLog(r.Context(), userID, id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// StartSession handles POST /api/v1/assistants/{id}/sessions.
func (h *AssistantHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid assistant id")
		return
	}

	sess, err := h.sessions.Start(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
