package model

import (
	"time"
)

// SessionStatus is the lifecycle status of an assistant session.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionStopped SessionStatus = "stopped"
)

// Session is one running or stopped instance of an assistant, reachable by
// guests through its share token. Starting an assistant reuses and
// reactivates its latest session rather than always minting a new one.
type Session struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	AssistantID   string        `gorm:"type:uuid;not null;index" json:"assistant_id"`
	Status        SessionStatus `gorm:"type:varchar(32);not null;default:running" json:"status"`
	Active        bool          `gorm:"not null;default:true" json:"active"`
	MQTTConnected bool          `gorm:"not null;default:false" json:"mqtt_connected"`
	ShareToken    string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"share_token"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string { return "assistant_sessions" }

// ViewerThread maps a (session, viewer-identity) pair to its current thread
// id. Viewer identity is the authenticated user id when present, else the
// per-browser device id. Rotating mints a new thread without touching
// messages written under the old one.
type ViewerThread struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;uniqueIndex:idx_viewer_threads_key" json:"session_id"`
	ViewerKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_viewer_threads_key" json:"viewer_key"`
	ThreadID  string    `gorm:"type:varchar(255);not null" json:"thread_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ViewerThread) TableName() string { return "viewer_threads" }
