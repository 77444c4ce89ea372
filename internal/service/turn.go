package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/prompting-realities/backend/internal/llm"
	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/mqtt"
	"github.com/prompting-realities/backend/internal/secrets"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/metrics"
)

// TurnService coordinates one chat turn: model call, optional broker
// publish, then a single atomic turn row. The row is only written after the
// model call succeeds, so a failed call leaves no trace in the transcript.
type TurnService struct {
	store        *store.Store
	threads      *ThreadService
	publisher    mqtt.Publisher
	box          *secrets.Box
	newClient    llm.Factory
	modelTimeout time.Duration
	logger       *logger.Logger
}

// NewTurnService creates a new turn coordinator.
func NewTurnService(st *store.Store, threads *ThreadService, pub mqtt.Publisher, box *secrets.Box, factory llm.Factory, modelTimeout time.Duration, log *logger.Logger) *TurnService {
	if factory == nil {
		factory = llm.NewClient
	}
	if modelTimeout <= 0 {
		modelTimeout = 30 * time.Second
	}
	return &TurnService{
		store:        st,
		threads:      threads,
		publisher:    pub,
		box:          box,
		newClient:    factory,
		modelTimeout: modelTimeout,
		logger:       log,
	}
}

// Run executes one turn on the viewer's thread. The caller has already
// resolved session access.
func (s *TurnService) Run(ctx context.Context, sess *model.Session, a *model.Assistant, userID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if sess.Status != model.SessionRunning || !sess.Active {
		return nil, ErrSessionNotRunning
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	apiKey, err := s.threadAPIKey(a)
	if err != nil {
		return nil, err
	}

	threadID, err := s.threads.Resolve(ctx, sess.ID, userID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	history, err := s.threadHistory(ctx, sess.ID, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread history: %w", err)
	}
	continuation, err := s.store.LatestContinuationID(ctx, sess.ID, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading continuation: %w", err)
	}

	client, err := s.newClient(string(a.ModelProvider), apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationMissing, err)
	}

	completionReq := &llm.CompletionRequest{
		Instructions: a.PromptInstruction,
		Schema:       json.RawMessage(a.JSONSchema),
		History:      history,
		UserMessage:  text,
	}
	if continuation != nil {
		completionReq.PreviousResponseID = *continuation
	}

	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	started := time.Now()
	resp, err := client.Complete(callCtx, completionReq)
	if err != nil {
		metrics.RecordModelCall(client.Name(), "error", time.Since(started).Seconds())
		metrics.TurnsTotal.WithLabelValues("model_error").Inc()
		s.logger.Error("model call failed",
			zap.String("session_id", sess.ID),
			zap.String("provider", client.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrModelCallFailed, err)
	}
	metrics.RecordModelCall(client.Name(), "ok", time.Since(started).Seconds())

	if resp.ContinuationID != "" {
		if err := s.writeMarker(ctx, sess, a, threadID, resp.ContinuationID); err != nil {
			// The turn itself still stands; the next call falls back to
			// history-based context.
			s.logger.Warn("writing continuation marker",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	attempted, delivered, mqttPayload := s.maybePublish(ctx, a, resp)

	msg := &model.ChatMessage{
		ID:            uuid.Must(uuid.NewV7()).String(),
		SessionID:     sess.ID,
		AssistantID:   a.ID,
		ThreadID:      threadID,
		Kind:          model.KindTurn,
		UserText:      &text,
		MQTTAttempted: attempted,
		MQTTPayload:   mqttPayload,
	}
	if req.DeviceID != "" {
		msg.DeviceID = &req.DeviceID
	}
	if len(resp.Raw) > 0 {
		msg.AssistantPayload = datatypes.JSON(resp.Raw)
	}
	if resp.DisplayText != "" {
		text := resp.DisplayText
		msg.ResponseText = &text
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		metrics.TurnsTotal.WithLabelValues("persist_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	metrics.MessagesTotal.WithLabelValues(string(model.KindTurn)).Inc()
	s.logger.Info("turn completed",
		zap.String("session_id", sess.ID),
		zap.String("thread_id", threadID),
		zap.String("message_id", msg.ID),
		zap.Int64("model_latency_ms", resp.LatencyMs),
		zap.Bool("mqtt_attempted", attempted),
		zap.Bool("mqtt_delivered", delivered),
	)

	return &model.SendMessageResponse{
		Message:       msg,
		MQTTAttempted: attempted,
		MQTTDelivered: delivered,
	}, nil
}

// Transcribe converts recorded audio to text with the assistant's own
// provider credentials. Only providers with a speech endpoint support it.
func (s *TurnService) Transcribe(ctx context.Context, a *model.Assistant, audio io.Reader, filename string) (string, error) {
	apiKey, err := s.threadAPIKey(a)
	if err != nil {
		return "", err
	}
	client, err := s.newClient(string(a.ModelProvider), apiKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigurationMissing, err)
	}
	tr, ok := client.(llm.Transcriber)
	if !ok {
		return "", fmt.Errorf("%w: provider %s does not support transcription", ErrConfigurationMissing, client.Name())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()
	return tr.Transcribe(callCtx, audio, filename)
}

// Transcript returns the viewer's visible thread, expanded into renderable
// views.
func (s *TurnService) Transcript(ctx context.Context, sessionID, userID, deviceID string) ([]model.MessageView, error) {
	threadID, err := s.threads.Resolve(ctx, sessionID, userID, deviceID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListThreadMessages(ctx, sessionID, threadID)
	if err != nil {
		return nil, err
	}

	views := make([]model.MessageView, 0, len(rows)*2)
	for i := range rows {
		views = append(views, rows[i].Views()...)
	}
	return views, nil
}

// React sets or clears a reaction on a turn row of the session.
func (s *TurnService) React(ctx context.Context, sessionID string, req *model.ReactionRequest) error {
	if req.Reaction != nil &&
		*req.Reaction != model.ReactionLike && *req.Reaction != model.ReactionDislike {
		return fmt.Errorf("unknown reaction %q", *req.Reaction)
	}
	return s.store.SetReaction(ctx, sessionID, req.MessageID, req.Reaction)
}

func (s *TurnService) threadAPIKey(a *model.Assistant) (string, error) {
	if a.APIKey == "" {
		return "", fmt.Errorf("%w: no api key configured", ErrConfigurationMissing)
	}
	apiKey, err := s.box.Decrypt(a.APIKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigurationMissing, err)
	}
	return apiKey, nil
}

// threadHistory rebuilds provider context from the persisted turns of the
// thread, oldest first.
func (s *TurnService) threadHistory(ctx context.Context, sessionID, threadID string) ([]llm.ChatMessage, error) {
	rows, err := s.store.ListThreadMessages(ctx, sessionID, threadID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.ChatMessage, 0, len(rows)*2)
	for i := range rows {
		row := &rows[i]
		if row.UserText != nil {
			history = append(history, llm.ChatMessage{Role: "user", Content: *row.UserText})
		}
		if len(row.AssistantPayload) > 0 {
			history = append(history, llm.ChatMessage{Role: "assistant", Content: string(row.AssistantPayload)})
		}
	}
	return history, nil
}

func (s *TurnService) writeMarker(ctx context.Context, sess *model.Session, a *model.Assistant, threadID, continuationID string) error {
	marker := &model.ChatMessage{
		ID:             uuid.Must(uuid.NewV7()).String(),
		SessionID:      sess.ID,
		AssistantID:    a.ID,
		ThreadID:       threadID,
		Kind:           model.KindMarker,
		ContinuationID: &continuationID,
	}
	if err := s.store.CreateMessage(ctx, marker); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.KindMarker)).Inc()
	return nil
}

// maybePublish extracts the broker value and attempts delivery when the
// assistant is configured for it. The stored payload records what was
// delivered; on failure it stays empty while attempted remains true.
func (s *TurnService) maybePublish(ctx context.Context, a *model.Assistant, resp *llm.CompletionResponse) (attempted, delivered bool, payload datatypes.JSON) {
	if !a.MQTTConfigured() || resp.Payload == nil {
		return false, false, nil
	}

	value := llm.MQTTValue(resp.Payload)
	res := s.publisher.Publish(ctx, mqtt.ConfigFromAssistant(a), value)
	if !res.Success {
		s.logger.Warn("mqtt publish failed",
			zap.String("assistant_id", a.ID),
			zap.String("detail", res.Message),
		)
		return true, false, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return true, true, nil
	}
	return true, true, datatypes.JSON(data)
}

