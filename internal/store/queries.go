package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prompting-realities/backend/internal/model"
)

// --- Assistants ---

func (s *Store) CreateAssistant(ctx context.Context, a *model.Assistant) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// GetAssistant fetches an assistant owned by userID.
func (s *Store) GetAssistant(ctx context.Context, id, userID string) (*model.Assistant, error) {
	var a model.Assistant
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// GetAssistantAny fetches an assistant regardless of owner. Used on the
// session path where access is established through the session itself.
func (s *Store) GetAssistantAny(ctx context.Context, id string) (*model.Assistant, error) {
	var a model.Assistant
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Store) ListAssistants(ctx context.Context, userID string) ([]model.Assistant, error) {
	var out []model.Assistant
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) SaveAssistant(ctx context.Context, a *model.Assistant) error {
	return s.db.WithContext(ctx).Save(a).Error
}

// DeleteAssistant soft deletes the assistant. Sessions and messages are
// retained for export.
func (s *Store) DeleteAssistant(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Assistant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *Store) GetSessionByShareToken(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).Where("share_token = ?", token).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

// LatestSession returns the most recent session for an assistant, if any.
func (s *Store) LatestSession(ctx context.Context, assistantID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.WithContext(ctx).
		Where("assistant_id = ?", assistantID).
		Order("created_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	return s.db.WithContext(ctx).Save(sess).Error
}

// ListSessions returns all sessions for an assistant, newest first.
func (s *Store) ListSessions(ctx context.Context, assistantID string) ([]model.Session, error) {
	var out []model.Session
	err := s.db.WithContext(ctx).
		Where("assistant_id = ?", assistantID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// --- Viewer threads ---

// GetOrCreateViewerThread returns the thread id bound to (session, viewer),
// creating the binding with threadID when none exists yet. The unique index
// on (session_id, viewer_key) makes concurrent first calls converge on a
// single row.
func (s *Store) GetOrCreateViewerThread(ctx context.Context, sessionID, viewerKey, threadID string) (string, error) {
	vt := model.ViewerThread{
		ID:        threadID,
		SessionID: sessionID,
		ViewerKey: viewerKey,
		ThreadID:  threadID,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "viewer_key"}},
			DoNothing: true,
		}).
		Create(&vt).Error
	if err != nil {
		return "", err
	}

	var existing model.ViewerThread
	err = s.db.WithContext(ctx).
		Where("session_id = ? AND viewer_key = ?", sessionID, viewerKey).
		First(&existing).Error
	if err != nil {
		return "", translate(err)
	}
	return existing.ThreadID, nil
}

// RotateViewerThread points the viewer's binding at a fresh thread id.
// Old messages stay in place under the previous thread id.
func (s *Store) RotateViewerThread(ctx context.Context, sessionID, viewerKey, newThreadID string) error {
	return s.db.WithContext(ctx).
		Model(&model.ViewerThread{}).
		Where("session_id = ? AND viewer_key = ?", sessionID, viewerKey).
		Updates(map[string]any{"thread_id": newThreadID, "updated_at": time.Now().UTC()}).Error
}

// --- Messages ---

func (s *Store) CreateMessage(ctx context.Context, m *model.ChatMessage) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// ListThreadMessages returns the turn rows of one thread in chronological
// order. Marker rows are excluded from the visible transcript.
func (s *Store) ListThreadMessages(ctx context.Context, sessionID, threadID string) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND thread_id = ? AND kind = ?", sessionID, threadID, model.KindTurn).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// ListSessionMessages returns every row of a session across all threads,
// markers included, for export and auditing.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// LatestContinuationID returns the continuation id from the newest marker
// row of a thread, or nil when the thread has no marker yet.
func (s *Store) LatestContinuationID(ctx context.Context, sessionID, threadID string) (*string, error) {
	var m model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND thread_id = ? AND kind = ?", sessionID, threadID, model.KindMarker).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return m.ContinuationID, nil
}

// SetReaction records a like/dislike on a turn row. Clearing passes nil.
func (s *Store) SetReaction(ctx context.Context, sessionID, messageID string, reaction *model.Reaction) error {
	res := s.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("id = ? AND session_id = ? AND kind = ?", messageID, sessionID, model.KindTurn).
		Update("reaction", reaction)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssistantMessages returns every row ever written for an assistant,
// across all sessions and threads, for the owner's audit view.
func (s *Store) ListAssistantMessages(ctx context.Context, assistantID string) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("assistant_id = ?", assistantID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// MQTTLog returns turn rows of a session that carried a structured payload
// and attempted broker delivery, newest first.
func (s *Store) MQTTLog(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND kind = ? AND mqtt_attempted = ?", sessionID, model.KindTurn, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MQTTLogForAssistant is the assistant-wide variant of MQTTLog.
func (s *Store) MQTTLogForAssistant(ctx context.Context, assistantID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("assistant_id = ? AND kind = ? AND mqtt_attempted = ?", assistantID, model.KindTurn, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// --- Export ---

// ListAssistantsForExport includes soft-deleted assistants so a user's
// export covers their full history.
func (s *Store) ListAssistantsForExport(ctx context.Context, userID string) ([]model.Assistant, error) {
	var out []model.Assistant
	err := s.db.WithContext(ctx).
		Unscoped().
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// ListViewerThreads returns the thread bindings of one session.
func (s *Store) ListViewerThreads(ctx context.Context, sessionID string) ([]model.ViewerThread, error) {
	var out []model.ViewerThread
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// DB exposes the raw handle for migrations in tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}
