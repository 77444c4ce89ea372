package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient is the Anthropic model client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client bound to an API key.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Complete sends a structured completion request. The instruction and schema
// contract ride in the leading message; the JSON object is parsed out of the
// text response.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]anthropic.MessageParam, 0, len(req.History)+2)
	messages = append(messages, textMessage(anthropic.MessageParamRoleUser, systemPrompt(req.Instructions, req.Schema)))
	for _, msg := range req.History {
		messages = append(messages, textMessage(anthropic.MessageParamRole(msg.Role), msg.Content))
	}
	messages = append(messages, textMessage(anthropic.MessageParamRoleUser, req.UserMessage))

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(defaultAnthropicModel),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	})
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	raw := json.RawMessage(stripCodeFence(content))
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}

	return &CompletionResponse{
		Payload:        payload,
		Raw:            raw,
		ContinuationID: resp.ID,
		DisplayText:    DisplayText(payload, raw),
		LatencyMs:      time.Since(start).Milliseconds(),
	}, nil
}

// Transcribe is unsupported; Anthropic does not offer a speech-to-text API.
func (c *AnthropicClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	return "", errors.New("transcription is not supported by the anthropic provider")
}

func textMessage(role anthropic.MessageParamRole, text string) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role: anthropic.F(role),
		Content: anthropic.F([]anthropic.ContentBlockParamUnion{
			anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(text),
			},
		}),
	}
}

// stripCodeFence unwraps ```json fenced responses some models produce even
// when asked for bare JSON.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
