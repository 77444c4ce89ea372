package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/metrics"
)

// EventKind classifies relay events.
type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
	EventSync  EventKind = "sync"
)

// Event is the wire form of a membership change propagated between
// instances.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Record    Record    `json:"record"`
	Origin    string    `json:"origin"`
}

// Relay propagates membership events between instances. A nil relay keeps
// presence purely in-process.
type Relay interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(handler func(Event)) (func(), error)
}

// Subscription delivers membership snapshots to one tracked device.
type Subscription struct {
	sessionID string
	deviceID  string
	ch        chan []Record
}

// Updates returns the channel of membership snapshots. A snapshot is
// delivered on every membership change; slow consumers miss intermediate
// snapshots, never the latest.
func (s *Subscription) Updates() <-chan []Record {
	return s.ch
}

// DeviceID returns the tracked device id.
func (s *Subscription) DeviceID() string {
	return s.deviceID
}

type member struct {
	rec      Record
	remote   bool
	lastSeen time.Time
}

type sessionState struct {
	members map[string]*member
	subs    map[*Subscription]struct{}
}

// Tracker holds live per-session membership and fans snapshots out to
// subscribers. Nothing here is persisted: ordering resets when every device
// disconnects.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	relay    Relay
	origin   string
	liveness time.Duration
	seq      atomic.Uint64
	logger   *logger.Logger

	unsubscribe func()
}

// NewTracker creates a tracker. origin identifies this instance on the
// relay; liveness bounds how long a silent remote member is kept.
func NewTracker(relay Relay, origin string, liveness time.Duration, log *logger.Logger) (*Tracker, error) {
	if liveness <= 0 {
		liveness = 30 * time.Second
	}
	t := &Tracker{
		sessions: make(map[string]*sessionState),
		relay:    relay,
		origin:   origin,
		liveness: liveness,
		logger:   log,
	}
	if relay != nil {
		unsub, err := relay.Subscribe(t.applyRemote)
		if err != nil {
			return nil, err
		}
		t.unsubscribe = unsub
	}
	return t, nil
}

// Run keeps remote membership fresh: it prunes silent remote members and
// re-announces local ones until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.liveness / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pruneRemote()
			t.announceLocal(ctx)
		}
	}
}

// Close detaches the tracker from the relay.
func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

// Track announces a device's presence in a session and subscribes it to
// membership snapshots. The returned subscription receives the current
// membership immediately.
func (t *Tracker) Track(ctx context.Context, sessionID string, rec Record) (*Subscription, error) {
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = time.Now()
	}
	rec.Seq = t.seq.Add(1)

	sub := &Subscription{
		sessionID: sessionID,
		deviceID:  rec.DeviceID,
		ch:        make(chan []Record, 8),
	}

	t.mu.Lock()
	state := t.session(sessionID)
	state.members[rec.DeviceID] = &member{rec: rec, lastSeen: time.Now()}
	state.subs[sub] = struct{}{}
	t.broadcastLocked(sessionID, state)
	t.mu.Unlock()

	if t.relay != nil {
		if err := t.relay.Publish(ctx, Event{Kind: EventJoin, SessionID: sessionID, Record: rec, Origin: t.origin}); err != nil {
			t.logger.Warn("failed to relay presence join",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	return sub, nil
}

// Untrack removes a device's presence and closes its subscription.
func (t *Tracker) Untrack(ctx context.Context, sub *Subscription) {
	var rec Record
	t.mu.Lock()
	if state, ok := t.sessions[sub.sessionID]; ok {
		if m, ok := state.members[sub.deviceID]; ok && !m.remote {
			rec = m.rec
			delete(state.members, sub.deviceID)
		}
		delete(state.subs, sub)
		t.broadcastLocked(sub.sessionID, state)
		if len(state.members) == 0 && len(state.subs) == 0 {
			delete(t.sessions, sub.sessionID)
		}
	}
	t.mu.Unlock()
	close(sub.ch)

	if t.relay != nil && rec.DeviceID != "" {
		if err := t.relay.Publish(ctx, Event{Kind: EventLeave, SessionID: sub.sessionID, Record: rec, Origin: t.origin}); err != nil {
			t.logger.Warn("failed to relay presence leave",
				zap.String("session_id", sub.sessionID),
				zap.Error(err),
			)
		}
	}
}

// Members returns the current membership of a session.
func (t *Tracker) Members(sessionID string) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	return snapshot(state)
}

// session returns or creates session state. Caller holds t.mu.
func (t *Tracker) session(sessionID string) *sessionState {
	state, ok := t.sessions[sessionID]
	if !ok {
		state = &sessionState{
			members: make(map[string]*member),
			subs:    make(map[*Subscription]struct{}),
		}
		t.sessions[sessionID] = state
	}
	return state
}

// broadcastLocked delivers the current membership to every subscriber.
// Caller holds t.mu.
func (t *Tracker) broadcastLocked(sessionID string, state *sessionState) {
	snap := snapshot(state)
	metrics.PresenceViewers.WithLabelValues(sessionID).Set(float64(len(snap)))
	for sub := range state.subs {
		select {
		case sub.ch <- snap:
		default:
			// Drain the stale snapshot so the fresh one lands.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}

func snapshot(state *sessionState) []Record {
	members := make([]Record, 0, len(state.members))
	for _, m := range state.members {
		members = append(members, m.rec)
	}
	return Rank(members)
}

// applyRemote folds a relayed event from another instance into local state.
func (t *Tracker) applyRemote(evt Event) {
	if evt.Origin == t.origin {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.session(evt.SessionID)
	switch evt.Kind {
	case EventJoin, EventSync:
		if existing, ok := state.members[evt.Record.DeviceID]; ok && !existing.remote {
			return // local records are authoritative for this instance
		}
		state.members[evt.Record.DeviceID] = &member{rec: evt.Record, remote: true, lastSeen: time.Now()}
	case EventLeave:
		if existing, ok := state.members[evt.Record.DeviceID]; !ok || !existing.remote {
			return
		}
		delete(state.members, evt.Record.DeviceID)
	}
	t.broadcastLocked(evt.SessionID, state)
}

// pruneRemote drops remote members that stopped announcing themselves.
// Disconnected viewers may linger up to the liveness timeout.
func (t *Tracker) pruneRemote() {
	cutoff := time.Now().Add(-t.liveness)

	t.mu.Lock()
	defer t.mu.Unlock()

	for sessionID, state := range t.sessions {
		changed := false
		for deviceID, m := range state.members {
			if m.remote && m.lastSeen.Before(cutoff) {
				delete(state.members, deviceID)
				changed = true
			}
		}
		if changed {
			t.broadcastLocked(sessionID, state)
		}
	}
}

// announceLocal re-publishes local members so peers keep them alive.
func (t *Tracker) announceLocal(ctx context.Context) {
	if t.relay == nil {
		return
	}

	t.mu.RLock()
	var events []Event
	for sessionID, state := range t.sessions {
		for _, m := range state.members {
			if !m.remote {
				events = append(events, Event{Kind: EventSync, SessionID: sessionID, Record: m.rec, Origin: t.origin})
			}
		}
	}
	t.mu.RUnlock()

	for _, evt := range events {
		if err := t.relay.Publish(ctx, evt); err != nil {
			t.logger.Debug("failed to relay presence sync", zap.Error(err))
			return
		}
	}
}
