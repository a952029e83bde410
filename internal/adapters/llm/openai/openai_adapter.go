package openai

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
)

// Adapter implements ports.LLMPort against OpenAI-compatible APIs
// (LM Studio, vLLM, OpenAI itself). OpenAI-style streams carry no eval
// metadata, so the terminal chunk never reports tokens-per-second.
type Adapter struct {
	client  *openai.Client
	baseURL string
}

var _ ports.LLMPort = (*Adapter)(nil)

// NewAdapter creates a new OpenAI-compatible LLM adapter
func NewAdapter(baseURL, apiKey string) *Adapter {
	config := openai.DefaultConfig(apiKey)

	// Override base URL for local providers like Ollama/LM Studio
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &Adapter{
		client:  openai.NewClientWithConfig(config),
		baseURL: baseURL,
	}
}

// ChatStream streams a chat completion.
func (a *Adapter) ChatStream(ctx context.Context, request *ports.ChatRequest, handler ports.StreamHandler) error {
	messages := make([]openai.ChatCompletionMessage, len(request.Messages))
	for i, msg := range request.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: msg.Content,
		}
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    request.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create streaming completion: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return handler(&ports.StreamChunk{Done: true})
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("streaming error: %w", err)
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if err := handler(&ports.StreamChunk{Delta: choice.Delta.Content}); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			return handler(&ports.StreamChunk{Done: true})
		}
	}
}

// GenerateStream streams a single-shot completion. OpenAI-compatible
// endpoints have no raw-prompt API, so the prompt is sent as a single user
// message.
func (a *Adapter) GenerateStream(ctx context.Context, request *ports.GenerateRequest, handler ports.StreamHandler) error {
	return a.ChatStream(ctx, &ports.ChatRequest{
		Model: request.Model,
		Messages: []ports.ChatMessage{
			{Role: "user", Content: request.Prompt},
		},
	}, handler)
}

// ListModels returns the available model names sorted lexicographically.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	modelsList, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, 0, len(modelsList.Models))
	for _, model := range modelsList.Models {
		names = append(names, model.ID)
	}
	sort.Strings(names)
	return names, nil
}

// Reachable probes the endpoint by listing models under a bounded timeout.
func (a *Adapter) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.ReachabilityTimeout)
	defer cancel()

	_, err := a.client.ListModels(ctx)
	return err == nil
}

// convertRole maps domain role strings to OpenAI roles
func convertRole(role string) string {
	switch role {
	case "user":
		return openai.ChatMessageRoleUser
	case "assistant":
		return openai.ChatMessageRoleAssistant
	case "system":
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
