package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/presence"
)

const (
	// SubjectPrefix is the prefix for presence relay subjects.
	SubjectPrefix = "presence"
)

// Relay propagates presence events over core NATS pub/sub. Presence is
// ephemeral by design, so no stream storage is involved: a missed event is
// repaired by the next sync announcement.
type Relay struct {
	client *Client
}

// NewRelay creates a presence relay on top of a connected client.
func NewRelay(client *Client) *Relay {
	return &Relay{client: client}
}

// PresenceSubject returns the subject for one session's presence events.
func PresenceSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, sessionID)
}

// Publish sends a membership event to peers.
func (r *Relay) Publish(ctx context.Context, evt presence.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	if err := r.client.Conn().Publish(PresenceSubject(evt.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}
	return nil
}

// Subscribe delivers peers' membership events to the handler. The returned
// function cancels the subscription.
func (r *Relay) Subscribe(handler func(presence.Event)) (func(), error) {
	sub, err := r.client.Conn().Subscribe(SubjectPrefix+".>", func(msg *nats.Msg) {
		var evt presence.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			r.client.logger.Warn("dropping malformed presence event", zap.Error(err))
			return
		}
		handler(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to presence events: %w", err)
	}

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}
