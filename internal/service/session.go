package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/mqtt"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/metrics"
)

// SessionService handles session lifecycle and access resolution.
type SessionService struct {
	store     *store.Store
	publisher mqtt.Publisher
	logger    *logger.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(st *store.Store, pub mqtt.Publisher, log *logger.Logger) *SessionService {
	return &SessionService{
		store:     st,
		publisher: pub,
		logger:    log,
	}
}

// Start brings the assistant's session up. The latest existing session is
// reused and reactivated so its share token and history stay stable; a new
// session is only created the first time. When the assistant has MQTT
// configured the broker is probed and the result recorded on the session.
func (s *SessionService) Start(ctx context.Context, userID, assistantID string) (*model.Session, error) {
	a, err := s.store.GetAssistant(ctx, assistantID, userID)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.LatestSession(ctx, assistantID)
	switch err {
	case nil:
		sess.Status = model.SessionRunning
		sess.Active = true
	case store.ErrNotFound:
		sess = &model.Session{
			ID:          uuid.Must(uuid.NewV7()).String(),
			AssistantID: assistantID,
			Status:      model.SessionRunning,
			Active:      true,
			ShareToken:  uuid.NewString(),
		}
		if err := s.store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
	default:
		return nil, err
	}

	sess.MQTTConnected = false
	if a.MQTTConfigured() {
		res := s.publisher.Test(ctx, mqtt.ConfigFromAssistant(a))
		sess.MQTTConnected = res.Success
		if !res.Success {
			s.logger.Warn("mqtt broker probe failed",
				zap.String("session_id", sess.ID),
				zap.String("detail", res.Message),
			)
		}
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues("start").Inc()
	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("assistant_id", assistantID),
	)
	return sess, nil
}

// Stop deactivates a session. Turn execution refuses stopped sessions;
// history stays readable.
func (s *SessionService) Stop(ctx context.Context, sess *model.Session) (*model.Session, error) {
	sess.Status = model.SessionStopped
	sess.Active = false
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues("stop").Inc()
	s.logger.Info("session stopped", zap.String("session_id", sess.ID))
	return sess, nil
}

// ResolveAccess loads a session and checks the caller may use it: either
// the share token matches, or the caller owns the session's assistant.
// The token comparison is constant time.
func (s *SessionService) ResolveAccess(ctx context.Context, sessionID, userID, shareToken string) (*model.Session, *model.Assistant, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.store.GetAssistantAny(ctx, sess.AssistantID)
	if err != nil {
		return nil, nil, err
	}

	if shareToken != "" &&
		subtle.ConstantTimeCompare([]byte(shareToken), []byte(sess.ShareToken)) == 1 {
		return sess, a, nil
	}
	if userID != "" && a.UserID == userID {
		return sess, a, nil
	}
	return nil, nil, ErrNotAuthorized
}

// MQTTLog lists the session's delivered broker payloads, newest first.
func (s *SessionService) MQTTLog(ctx context.Context, sessionID string, limit int) ([]model.MQTTLogEntry, error) {
	rows, err := s.store.MQTTLog(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]model.MQTTLogEntry, 0, len(rows))
	for _, row := range rows {
		if len(row.MQTTPayload) == 0 {
			continue
		}
		entries = append(entries, model.MQTTLogEntry{
			MessageID: row.ID,
			Payload:   row.MQTTPayload,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

// TestBroker probes an assistant's configured broker without touching any
// session state.
func (s *SessionService) TestBroker(ctx context.Context, userID, assistantID string) (mqtt.Result, error) {
	a, err := s.store.GetAssistant(ctx, assistantID, userID)
	if err != nil {
		return mqtt.Result{}, err
	}
	if !a.MQTTConfigured() {
		return mqtt.Result{}, ErrConfigurationMissing
	}
	return s.publisher.Test(ctx, mqtt.ConfigFromAssistant(a)), nil
}

// PublishManual publishes an arbitrary value to an assistant's topic, for
// operator smoke tests.
func (s *SessionService) PublishManual(ctx context.Context, userID, assistantID string, value any) (mqtt.Result, error) {
	a, err := s.store.GetAssistant(ctx, assistantID, userID)
	if err != nil {
		return mqtt.Result{}, err
	}
	if !a.MQTTConfigured() {
		return mqtt.Result{}, ErrConfigurationMissing
	}
	return s.publisher.Publish(ctx, mqtt.ConfigFromAssistant(a), value), nil
}
