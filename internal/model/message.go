package model

import (
	"time"

	"gorm.io/datatypes"
)

// MessageKind distinguishes conversation turns from internal marker rows.
type MessageKind string

const (
	// KindTurn couples a user utterance with the assistant reply produced
	// for it. Both halves live in one row.
	KindTurn MessageKind = "turn"
	// KindMarker carries a model continuation id for its thread and is
	// never shown in a chat view.
	KindMarker MessageKind = "marker"
)

// Reaction is the only mutable field on a persisted message.
type Reaction string

const (
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// ChatMessage is one persisted conversation turn (or a context marker).
// Rows are insert-only: nothing but the reaction is ever updated, and rows
// are never deleted even when the owning assistant is.
type ChatMessage struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        string         `gorm:"type:uuid;not null;index" json:"session_id"`
	AssistantID      string         `gorm:"type:uuid;not null;index" json:"assistant_id"`
	ThreadID         string         `gorm:"type:varchar(255);not null;index" json:"thread_id"`
	DeviceID         *string        `gorm:"type:varchar(255);index" json:"device_id,omitempty"`
	Kind             MessageKind    `gorm:"type:varchar(16);not null;default:turn" json:"kind"`
	UserText         *string        `gorm:"type:text" json:"user_text,omitempty"`
	// JSON columns are declared text: a "json" column gets numeric
	// affinity in sqlite, which mangles scalar payloads like 7 on read.
	AssistantPayload datatypes.JSON `gorm:"type:text" json:"assistant_payload,omitempty"`
	ResponseText     *string        `gorm:"type:text" json:"response_text,omitempty"`
	MQTTPayload      datatypes.JSON `gorm:"type:text" json:"mqtt_payload,omitempty"`
	MQTTAttempted    bool           `gorm:"not null;default:false" json:"mqtt_attempted"`
	ContinuationID   *string        `gorm:"type:varchar(255)" json:"-"`
	Reaction         *Reaction      `gorm:"type:varchar(16)" json:"reaction,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// MQTTFailed reports the "payload produced but delivery failed" condition:
// the model returned a payload, a publish was attempted, and no delivered
// value was recorded. Messages without MQTT configuration are never flagged
// because no attempt is recorded for them.
func (m *ChatMessage) MQTTFailed() bool {
	return len(m.AssistantPayload) > 0 && m.MQTTAttempted && len(m.MQTTPayload) == 0
}

// ViewRole tags the variants a flat ChatMessage row expands into.
type ViewRole string

const (
	ViewUser      ViewRole = "user"
	ViewAssistant ViewRole = "assistant"
	ViewMarker    ViewRole = "marker"
)

// MessageView is one renderable bubble derived from a stored row. A turn row
// expands to a user view and an assistant view; marker rows expand to a
// single marker view that chat UIs must drop.
type MessageView struct {
	MessageID  string         `json:"message_id"`
	Role       ViewRole       `json:"role"`
	Text       string         `json:"text,omitempty"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	MQTTFailed bool           `json:"mqtt_failed,omitempty"`
	Reaction   *Reaction      `json:"reaction,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Views expands the row into its tagged variants so downstream code never
// branches on which fields happen to be null.
func (m *ChatMessage) Views() []MessageView {
	if m.Kind == KindMarker {
		return []MessageView{{MessageID: m.ID, Role: ViewMarker, CreatedAt: m.CreatedAt}}
	}

	var views []MessageView
	if m.UserText != nil {
		views = append(views, MessageView{
			MessageID: m.ID,
			Role:      ViewUser,
			Text:      *m.UserText,
			CreatedAt: m.CreatedAt,
		})
	}
	if len(m.AssistantPayload) > 0 || m.ResponseText != nil {
		text := ""
		if m.ResponseText != nil {
			text = *m.ResponseText
		}
		views = append(views, MessageView{
			MessageID:  m.ID,
			Role:       ViewAssistant,
			Text:       text,
			Payload:    m.AssistantPayload,
			MQTTFailed: m.MQTTFailed(),
			Reaction:   m.Reaction,
			CreatedAt:  m.CreatedAt,
		})
	}
	return views
}

// SendMessageRequest is the request to run one chat turn.
type SendMessageRequest struct {
	Text     string `json:"text"`
	DeviceID string `json:"device_id,omitempty"`
}

// SendMessageResponse returns the persisted turn plus delivery detail the
// composer needs for inline warnings.
type SendMessageResponse struct {
	Message       *ChatMessage `json:"message"`
	MQTTAttempted bool         `json:"mqtt_attempted"`
	MQTTDelivered bool         `json:"mqtt_delivered"`
}

// ReactionRequest sets or clears a reaction on a message.
type ReactionRequest struct {
	MessageID string    `json:"message_id"`
	Reaction  *Reaction `json:"reaction"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// ResetRequest identifies the viewer whose thread should be reset.
type ResetRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

// ResetResponse returns the freshly minted thread id.
type ResetResponse struct {
	ThreadID string `json:"thread_id"`
}

// MQTTLogEntry is one delivered payload, for the operator-facing log.
type MQTTLogEntry struct {
	MessageID string         `json:"message_id"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// TranscriptionResponse is the speech-to-text result.
type TranscriptionResponse struct {
	Text string `json:"text"`
}
