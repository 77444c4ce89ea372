package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient is the OpenAI model client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client bound to an API key.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Complete sends a structured completion request. The chat completions API
// is stateless, so thread context is rebuilt from req.History and the
// response id is returned as the continuation id for bookkeeping.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(req.Instructions, req.Schema),
	})
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     defaultOpenAIModel,
		Messages:  messages,
		MaxTokens: maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	raw := json.RawMessage(resp.Choices[0].Message.Content)
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

// Transcribe converts recorded audio to text using Whisper.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// systemPrompt combines the assistant instruction with the schema contract
// the structured response must satisfy.
func systemPrompt(instructions string, schema json.RawMessage) string {
	prompt := instructions
	if prompt == "" {
		prompt = "You are a helpful assistant."
	}
	prompt += "\n\nRespond with a single JSON object."
	if len(schema) > 0 {
		prompt += " The object must conform to this JSON schema:\n" + string(schema)
	}
	return prompt
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("model returned a non-object payload: %w", err)
	}
	return payload, nil
}
