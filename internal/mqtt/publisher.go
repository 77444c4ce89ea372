// Package mqtt publishes extracted payloads to per-assistant brokers.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/pkg/logger"
	"github.com/prompting-realities/backend/pkg/metrics"
)

// Config identifies one broker target.
type Config struct {
	Host     string
	Port     int
	Username *string
	Password *string
	Topic    string
}

// ConfigFromAssistant builds the broker target from assistant configuration.
func ConfigFromAssistant(a *model.Assistant) Config {
	return Config{
		Host:     a.MQTTHost,
		Port:     a.MQTTPort,
		Username: a.MQTTUser,
		Password: a.MQTTPass,
		Topic:    a.MQTTTopic,
	}
}

// Result reports the outcome of a broker operation. Ordinary connectivity
// failure is not an error: it is Success=false with a message.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Publisher delivers payloads to brokers and tests connectivity.
type Publisher interface {
	Publish(ctx context.Context, cfg Config, value any) Result
	Test(ctx context.Context, cfg Config) Result
}

// PahoPublisher is the paho-backed Publisher. Brokers are often unreachable
// IoT devices, so every operation is bounded by a short timeout.
type PahoPublisher struct {
	timeout  time.Duration
	clientID string
	logger   *logger.Logger
}

// NewPublisher creates a PahoPublisher with the given per-operation timeout.
func NewPublisher(timeout time.Duration, clientID string, log *logger.Logger) *PahoPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PahoPublisher{timeout: timeout, clientID: clientID, logger: log}
}

// Publish connects, publishes one JSON payload and disconnects.
func (p *PahoPublisher) Publish(ctx context.Context, cfg Config, value any) Result {
	data, err := json.Marshal(value)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("payload not serializable: %v", err)}
	}

	client, res := p.connect(ctx, cfg)
	if !res.Success {
		metrics.RecordMQTTPublish(false)
		return res
	}
	defer client.Disconnect(250)

	token := client.Publish(cfg.Topic, 0, false, data)
	if !token.WaitTimeout(p.timeout) {
		metrics.RecordMQTTPublish(false)
		return Result{Success: false, Message: "publish timed out"}
	}
	if err := token.Error(); err != nil {
		metrics.RecordMQTTPublish(false)
		return Result{Success: false, Message: err.Error()}
	}

	p.logger.Debug("mqtt payload published",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("topic", cfg.Topic),
	)
	metrics.RecordMQTTPublish(true)
	return Result{Success: true, Message: "published successfully"}
}

// Test connects and disconnects without publishing.
func (p *PahoPublisher) Test(ctx context.Context, cfg Config) Result {
	client, res := p.connect(ctx, cfg)
	if !res.Success {
		return res
	}
	client.Disconnect(250)
	return Result{Success: true, Message: "connection successful"}
}

func (p *PahoPublisher) connect(ctx context.Context, cfg Config) (paho.Client, Result) {
	if cfg.Host == "" {
		return nil, Result{Success: false, Message: "broker host is not configured"}
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(p.clientID).
		SetConnectTimeout(p.timeout).
		SetAutoReconnect(false)
	if cfg.Username != nil && *cfg.Username != "" {
		opts.SetUsername(*cfg.Username)
		if cfg.Password != nil {
			opts.SetPassword(*cfg.Password)
		}
	}

	client := paho.NewClient(opts)
	token := client.Connect()

	deadline := p.timeout
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(ctxDeadline); remaining < deadline {
			deadline = remaining
		}
	}

	if !token.WaitTimeout(deadline) {
		p.logger.Warn("mqtt connect timed out",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
		)
		return nil, Result{Success: false, Message: "connection timed out"}
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt connect failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.Error(err),
		)
		return nil, Result{Success: false, Message: err.Error()}
	}

	return client, Result{Success: true}
}
