package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
)

// ThreadService binds viewers to per-viewer threads inside a session. An
// authenticated user keeps one thread across devices; anonymous guests get
// one thread per browser device id.
type ThreadService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewThreadService creates a new thread service.
func NewThreadService(st *store.Store, log *logger.Logger) *ThreadService {
	return &ThreadService{store: st, logger: log}
}

// ViewerKey derives the stable identity a thread hangs off. The user id
// wins over the device id so a signed-in viewer sees the same thread from
// every device.
func ViewerKey(userID, deviceID string) (string, error) {
	if userID != "" {
		return "user:" + userID, nil
	}
	if deviceID != "" {
		return "device:" + deviceID, nil
	}
	return "", fmt.Errorf("neither user id nor device id present")
}

// Resolve returns the viewer's current thread id, creating the binding on
// first contact.
func (s *ThreadService) Resolve(ctx context.Context, sessionID, userID, deviceID string) (string, error) {
	key, err := ViewerKey(userID, deviceID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadInitializationFailed, err)
	}

	threadID, err := s.store.GetOrCreateViewerThread(ctx, sessionID, key, uuid.Must(uuid.NewV7()).String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadInitializationFailed, err)
	}
	return threadID, nil
}

// Reset points the viewer at a fresh, empty thread. Messages written under
// the old thread id stay in storage and keep appearing in exports.
func (s *ThreadService) Reset(ctx context.Context, sessionID, userID, deviceID string) (string, error) {
	key, err := ViewerKey(userID, deviceID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadInitializationFailed, err)
	}

	newThreadID := uuid.Must(uuid.NewV7()).String()
	if _, err := s.store.GetOrCreateViewerThread(ctx, sessionID, key, newThreadID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadInitializationFailed, err)
	}
	if err := s.store.RotateViewerThread(ctx, sessionID, key, newThreadID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrThreadInitializationFailed, err)
	}

	s.logger.Info("thread reset",
		zap.String("session_id", sessionID),
		zap.String("thread_id", newThreadID),
	)
	return newThreadID, nil
}
