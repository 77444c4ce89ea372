package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/presence"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/metrics"
)

// PresenceHandler streams live queue state over SSE.
type PresenceHandler struct {
	sessions *service.SessionService
	tracker  *presence.Tracker
	logger   *logger.Logger
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(sessions *service.SessionService, tracker *presence.Tracker, log *logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		sessions: sessions,
		tracker:  tracker,
		logger:   log,
	}
}

// queueEvent is one queue snapshot pushed to a viewer.
type queueEvent struct {
	presence.QueueState
	ViewerCount int       `json:"viewer_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/sessions/{id}/presence. The connection itself
// is the viewer's presence: joining the stream joins the queue, and the
// slot is released the moment the client disconnects. A viewer that cannot
// be tracked still gets read-only snapshots.
func (h *PresenceHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := h.resolveAccess(w, r)
	if !ok {
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// The server write timeout would cut long-lived streams, dropping the
	// viewer to the back of the queue on reconnect.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("clearing write deadline", zap.Error(err))
	}

	metrics.PresenceConnectionsActive.Inc()
	defer metrics.PresenceConnectionsActive.Dec()

	rec := presence.Record{
		DeviceID: deviceID,
		Email:    middleware.GetEmail(ctx),
		JoinedAt: time.Now().UTC(),
	}

	sub, err := h.tracker.Track(ctx, sess.ID, rec)
	if err != nil {
		// Read-only fallback: the viewer sees the queue but holds no slot.
		h.logger.Warn("presence track failed, serving passive stream",
			zap.String("session_id", sess.ID), zap.Error(err))
		h.streamPassive(w, r, flusher, sess.ID, deviceID)
		return
	}
	defer h.tracker.Untrack(ctx, sub)

	sendSSEEvent(w, flusher, "connected", map[string]string{"session_id": sess.ID})
	h.sendQueue(w, flusher, h.tracker.Members(sess.ID), deviceID)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case members, open := <-sub.Updates():
			if !open {
				return
			}
			h.sendQueue(w, flusher, members, deviceID)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"timestamp": time.Now().UTC()})
		}
	}
}

func (h *PresenceHandler) streamPassive(w http.ResponseWriter, r *http.Request, flusher http.Flusher, sessionID, deviceID string) {
	sendSSEEvent(w, flusher, "connected", map[string]string{"session_id": sessionID})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	h.sendQueue(w, flusher, h.tracker.Members(sessionID), deviceID)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			h.sendQueue(w, flusher, h.tracker.Members(sessionID), deviceID)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"timestamp": time.Now().UTC()})
		}
	}
}

func (h *PresenceHandler) sendQueue(w http.ResponseWriter, flusher http.Flusher, members []presence.Record, deviceID string) {
	state := presence.Resolve(members, deviceID)
	sendSSEEvent(w, flusher, "queue", queueEvent{
		QueueState:  state,
		ViewerCount: len(members),
		Timestamp:   time.Now().UTC(),
	})
}

func (h *PresenceHandler) resolveAccess(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	id := chi.URLParam(r, "id")
	if !middleware.ValidUUID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}

	sess, _, err := h.sessions.ResolveAccess(r.Context(), id, middleware.GetUserID(r.Context()), r.URL.Query().Get("session_token"))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return sess, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
