package handler

import (
	"net/http"

	natsclient "github.com/prompting-realities/backend/internal/nats"
	"github.com/prompting-realities/backend/internal/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store *store.Store
	nats  *natsclient.Client
}

// NewHealthHandler creates a new health handler. The NATS client may be nil
// when presence relaying is disabled.
func NewHealthHandler(st *store.Store, nc *natsclient.Client) *HealthHandler {
	return &HealthHandler{store: st, nats: nc}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready. The database must answer; the presence relay is
// reported but optional, the queue degrades to single-instance visibility
// without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	if err := h.store.Ping(); err != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["presence_relay"] = "ok"
		} else {
			checks["presence_relay"] = "disconnected"
		}
	} else {
		checks["presence_relay"] = "disabled"
	}

	writeJSON(w, status, checks)
}
