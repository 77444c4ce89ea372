package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/secrets"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
)

// AssistantService handles assistant configuration.
type AssistantService struct {
	store  *store.Store
	box    *secrets.Box
	logger *logger.Logger
}

// NewAssistantService creates a new assistant service.
func NewAssistantService(st *store.Store, box *secrets.Box, log *logger.Logger) *AssistantService {
	return &AssistantService{
		store:  st,
		box:    box,
		logger: log,
	}
}

// Create creates a new assistant, encrypting the API key at rest.
func (s *AssistantService) Create(ctx context.Context, userID string, req *model.CreateAssistantRequest) (*model.Assistant, error) {
	provider := req.ModelProvider
	if provider == "" {
		provider = model.ProviderOpenAI
	}
	if provider != model.ProviderOpenAI && provider != model.ProviderAnthropic {
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}

	encryptedKey, err := s.box.Encrypt(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting api key: %w", err)
	}

	port := req.MQTTPort
	if port == 0 {
		port = 1883
	}

	a := &model.Assistant{
		ID:                uuid.Must(uuid.NewV7()).String(),
		UserID:            userID,
		Name:              req.Name,
		PromptInstruction: req.PromptInstruction,
		JSONSchema:        req.JSONSchema,
		ModelProvider:     provider,
		MQTTHost:          req.MQTTHost,
		MQTTPort:          port,
		MQTTUser:          req.MQTTUser,
		MQTTPass:          req.MQTTPass,
		MQTTTopic:         req.MQTTTopic,
		APIKey:            encryptedKey,
	}

	if err := s.store.CreateAssistant(ctx, a); err != nil {
		return nil, fmt.Errorf("creating assistant: %w", err)
	}

	s.logger.Info("assistant created",
		zap.String("assistant_id", a.ID),
		zap.String("user_id", userID),
	)

	s.decorate(ctx, a)
	return a, nil
}

// Get retrieves one of the caller's assistants.
func (s *AssistantService) Get(ctx context.Context, userID, assistantID string) (*model.Assistant, error) {
	a, err := s.store.GetAssistant(ctx, assistantID, userID)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, a)
	return a, nil
}

// List retrieves the caller's assistants, newest first.
func (s *AssistantService) List(ctx context.Context, userID string) ([]model.Assistant, error) {
	assistants, err := s.store.ListAssistants(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range assistants {
		s.decorate(ctx, &assistants[i])
	}
	return assistants, nil
}

// Update applies the non-nil fields of req. A non-nil empty API key clears
// the stored key.
func (s *AssistantService) Update(ctx context.Context, userID, assistantID string, req *model.UpdateAssistantRequest) (*model.Assistant, error) {
	a, err := s.store.GetAssistant(ctx, assistantID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.PromptInstruction != nil {
		a.PromptInstruction = *req.PromptInstruction
	}
	if req.JSONSchema != nil {
		a.JSONSchema = *req.JSONSchema
	}
	if req.ModelProvider != nil {
		if *req.ModelProvider != model.ProviderOpenAI && *req.ModelProvider != model.ProviderAnthropic {
			return nil, fmt.Errorf("unsupported model provider %q", *req.ModelProvider)
		}
		a.ModelProvider = *req.ModelProvider
	}
	if req.MQTTHost != nil {
		a.MQTTHost = *req.MQTTHost
	}
	if req.MQTTPort != nil {
		a.MQTTPort = *req.MQTTPort
	}
	if req.MQTTUser != nil {
		a.MQTTUser = req.MQTTUser
	}
	if req.MQTTPass != nil {
		a.MQTTPass = req.MQTTPass
	}
	if req.MQTTTopic != nil {
		a.MQTTTopic = *req.MQTTTopic
	}
	if req.APIKey != nil {
		encryptedKey, err := s.box.Encrypt(*req.APIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypting api key: %w", err)
		}
		a.APIKey = encryptedKey
	}

	if err := s.store.SaveAssistant(ctx, a); err != nil {
		return nil, fmt.Errorf("updating assistant: %w", err)
	}

	s.logger.Info("assistant updated", zap.String("assistant_id", a.ID))

	s.decorate(ctx, a)
	return a, nil
}

// Delete soft deletes an assistant. Its sessions and messages survive for
// export.
func (s *AssistantService) Delete(ctx context.Context, userID, assistantID string) error {
	if err := s.store.DeleteAssistant(ctx, assistantID, userID); err != nil {
		return err
	}
	s.logger.Info("assistant deleted", zap.String("assistant_id", assistantID))
	return nil
}

// Messages returns the assistant's complete history across all sessions
// and threads, markers included, for the owner's audit view.
func (s *AssistantService) Messages(ctx context.Context, userID, assistantID string) ([]model.ChatMessage, error) {
	if _, err := s.store.GetAssistant(ctx, assistantID, userID); err != nil {
		return nil, err
	}
	return s.store.ListAssistantMessages(ctx, assistantID)
}

// MQTTLog lists the assistant's delivered broker payloads across all
// sessions, newest first.
func (s *AssistantService) MQTTLog(ctx context.Context, userID, assistantID string, limit int) ([]model.MQTTLogEntry, error) {
	if _, err := s.store.GetAssistant(ctx, assistantID, userID); err != nil {
		return nil, err
	}

	rows, err := s.store.MQTTLogForAssistant(ctx, assistantID, limit)
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

// decorate fills the non-stored response fields. Decoration failures are
// logged and otherwise ignored, the assistant itself is still usable.
func (s *AssistantService) decorate(ctx context.Context, a *model.Assistant) {
	a.HasAPIKey = a.APIKey != ""

	sess, err := s.store.LatestSession(ctx, a.ID)
	if err != nil {
		if err != store.ErrNotFound {
			s.logger.Warn("loading latest session", zap.String("assistant_id", a.ID), zap.Error(err))
		}
		return
	}
	a.LatestSessionID = &sess.ID
	a.LatestShareToken = &sess.ShareToken
}
