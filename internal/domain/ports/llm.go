package ports

import (
	"context"
)

// LLMPort defines the interface for model endpoint operations. Implementations
// must be safe for concurrent use; every stream is cancellable through its
// context.
type LLMPort interface {
	// ChatStream streams a chat completion, invoking the handler for each
	// chunk until the terminal chunk (Done=true) or an error.
	ChatStream(ctx context.Context, request *ChatRequest, handler StreamHandler) error

	// GenerateStream streams a single-shot completion for a raw prompt.
	GenerateStream(ctx context.Context, request *GenerateRequest, handler StreamHandler) error

	// ListModels returns the available model names sorted lexicographically.
	ListModels(ctx context.Context) ([]string, error)

	// Reachable probes the endpoint with a bounded timeout. It never
	// returns an error; any failure is simply false.
	Reachable(ctx context.Context) bool
}

// ChatMessage is a single turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a streaming chat completion request
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// GenerateRequest represents a single-shot completion request
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// StreamHandler defines a function type for handling streaming responses
type StreamHandler func(chunk *StreamChunk) error

// StreamChunk represents a chunk of streaming response. TokensPerSecond is
// populated only on the terminal chunk, and only when the endpoint reported
// eval metadata.
type StreamChunk struct {
	Delta           string   `json:"delta"`
	Done            bool     `json:"done"`
	TokensPerSecond *float64 `json:"tokens_per_second,omitempty"`
}
