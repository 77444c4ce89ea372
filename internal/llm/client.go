// Package llm provides model provider clients and payload extraction.
package llm

import (
	"context"
	"encoding/json"
	"io"
)

// ChatMessage is one prior exchange passed to the model for context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks the model for one structured turn.
type CompletionRequest struct {
	// Instructions is the assistant's prompt instruction.
	Instructions string
	// Schema is the JSON response schema the payload must satisfy. May be
	// empty, in which case the model is only asked for a JSON object.
	Schema json.RawMessage
	// PreviousResponseID chains provider-side context when the provider
	// supports it. Stateless providers rebuild context from History.
	PreviousResponseID string
	// History holds the prior turns of the calling thread, oldest first.
	History []ChatMessage
	// UserMessage is the new utterance.
	UserMessage string
	MaxTokens   int
}

// CompletionResponse is one structured model turn.
type CompletionResponse struct {
	// Payload is the decoded structured response.
	Payload map[string]any
	// Raw is the payload as the provider returned it.
	Raw json.RawMessage
	// ContinuationID chains the next turn of the same thread.
	ContinuationID string
	// DisplayText is the human-facing string extracted from Payload.
	DisplayText string
	LatencyMs   int64
}

// Client is the interface for model providers.
type Client interface {
	// Complete sends one structured completion request.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Factory builds a provider client bound to a decrypted API key. The turn
// coordinator resolves one per turn from the assistant's configuration.
type Factory func(provider string, apiKey string) (Client, error)

// NewClient creates a provider client based on the provider name.
func NewClient(provider string, apiKey string) (Client, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicClient(apiKey)
	default:
		return NewOpenAIClient(apiKey)
	}
}
