package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"

	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/pkg/logger"
)

// SessionHandler handles the shared session surface. Routes accept either
// an owner's bearer token or the session's share token via the
// session_token query parameter.
type SessionHandler struct {
	sessions *service.SessionService
	threads  *service.ThreadService
	turns    *service.TurnService
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *service.SessionService, threads *service.ThreadService, turns *service.TurnService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		threads:  threads,
		turns:    turns,
		logger:   log,
	}
}

// resolve loads the session and checks the caller's access.
func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request) (*model.Session, *model.Assistant, bool) {
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, nil, false
	}

	userID := middleware.GetUserID(r.Context())
	shareToken := r.URL.Query().Get("session_token")

	sess, a, err := h.sessions.ResolveAccess(r.Context(), id, userID, shareToken)
	if err != nil {
		writeServiceError(w, err)
		return nil, nil, false
	}
	return sess, a, true
}

// sessionView is the session as guests see it: enough to render the chat,
// nothing private.
type sessionView struct {
	ID            string              `json:"id"`
	Status        model.SessionStatus `json:"status"`
	Active        bool                `json:"active"`
	MQTTConnected bool                `json:"mqtt_connected"`
	AssistantName string              `json:"assistant_name"`
	JSONSchema    datatypes.JSON      `json:"json_schema,omitempty"`
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		ID:            sess.ID,
		Status:        sess.Status,
		Active:        sess.Active,
		MQTTConnected: sess.MQTTConnected,
		AssistantName: a.Name,
		JSONSchema:    a.JSONSchema,
	})
}

// Stop handles POST /api/v1/sessions/{id}/stop. Only the owner may stop a
// session; guests holding the share link cannot take it down for everyone.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if middleware.GetUserID(r.Context()) != a.UserID {
		writeError(w, http.StatusForbidden, "only the owner can stop a session")
		return
	}
	sess, err := h.sessions.Stop(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Reset handles POST /api/v1/sessions/{id}/reset. The caller's own thread
// is replaced with a fresh one; other viewers are untouched.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if sess.Status != model.SessionRunning {
		writeError(w, http.StatusConflict, "session is not running")
		return
	}

	var req model.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threadID, err := h.threads.Reset(r.Context(), sess.ID, middleware.GetUserID(r.Context()), req.DeviceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ResetResponse{ThreadID: threadID})
}

// Messages handles GET /api/v1/sessions/{id}/messages. The response is the
// caller's own thread only.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	views, err := h.turns.Transcript(r.Context(), sess.ID, middleware.GetUserID(r.Context()), r.URL.Query().Get("device_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

// Send handles POST /api/v1/sessions/{id}/messages, one full chat turn.
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.turns.Run(r.Context(), sess, a, middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reaction handles POST /api/v1/sessions/{id}/reaction.
func (h *SessionHandler) Reaction(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req model.ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !middleware.ValidUUID(req.MessageID) {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.turns.React(r.Context(), sess.ID, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MQTTLog handles GET /api/v1/sessions/{id}/mqtt-log.
func (h *SessionHandler) MQTTLog(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	entries, err := h.sessions.MQTTLog(r.Context(), sess.ID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Transcribe handles POST /api/v1/sessions/{id}/transcribe with a
// multipart "audio" part.
func (h *SessionHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if sess.Status != model.SessionRunning {
		writeError(w, http.StatusConflict, "session is not running")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio part is required")
		return
	}
	defer file.Close()

	text, err := h.turns.Transcribe(r.Context(), a, file, header.Filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.TranscriptionResponse{Text: text})
}
