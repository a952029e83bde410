package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
)

// Client provides native Ollama API access. It implements ports.LLMPort.
//
// Unary calls use a bounded-timeout HTTP client; streaming calls use a
// client without a timeout so long generations are governed only by the
// request context.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

var _ ports.LLMPort = (*Client)(nil)

// NewClient creates a new Ollama API client
func NewClient(baseURL string) *Client {
	// Ensure baseURL doesn't end with /v1 suffix (we want raw Ollama API)
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// Model represents an Ollama model
type Model struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// ListModelsResponse is the response from /api/tags
type ListModelsResponse struct {
	Models []Model `json:"models"`
}

// chatRequest is the /api/chat request body
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatChunk is one NDJSON line of a streaming /api/chat response. The
// terminal chunk (done=true) carries the eval metadata.
type chatChunk struct {
	Message      *chatMessage `json:"message,omitempty"`
	Done         bool         `json:"done"`
	EvalCount    int64        `json:"eval_count,omitempty"`
	EvalDuration int64        `json:"eval_duration,omitempty"` // nanoseconds
}

// generateRequest is the /api/generate request body
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateChunk is one NDJSON line of a streaming /api/generate response
type generateChunk struct {
	Response     string `json:"response"`
	Done         bool   `json:"done"`
	EvalCount    int64  `json:"eval_count,omitempty"`
	EvalDuration int64  `json:"eval_duration,omitempty"`
}

// ListModels returns the available model names sorted lexicographically.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, 0, len(response.Models))
	for _, model := range response.Models {
		names = append(names, model.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ChatStream streams a chat completion over /api/chat. Each NDJSON line
// becomes one handler invocation; the terminal chunk carries the
// tokens-per-second rate when the endpoint reported eval metadata.
func (c *Client) ChatStream(ctx context.Context, request *ports.ChatRequest, handler ports.StreamHandler) error {
	messages := make([]chatMessage, len(request.Messages))
	for i, msg := range request.Messages {
		messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	body := chatRequest{
		Model:    request.Model,
		Messages: messages,
		Stream:   true,
	}

	resp, err := c.postStream(ctx, "/api/chat", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to decode chunk: %w", err)
		}

		out := &ports.StreamChunk{Done: chunk.Done}
		if chunk.Message != nil {
			out.Delta = chunk.Message.Content
		}
		if chunk.Done {
			out.TokensPerSecond = tokensPerSecond(chunk.EvalCount, chunk.EvalDuration)
		}
		if err := handler(out); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
}

// GenerateStream streams a single-shot completion over /api/generate.
func (c *Client) GenerateStream(ctx context.Context, request *ports.GenerateRequest, handler ports.StreamHandler) error {
	body := generateRequest{
		Model:  request.Model,
		Prompt: request.Prompt,
		Stream: true,
	}

	resp, err := c.postStream(ctx, "/api/generate", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var chunk generateChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to decode chunk: %w", err)
		}

		out := &ports.StreamChunk{Delta: chunk.Response, Done: chunk.Done}
		if chunk.Done {
			out.TokensPerSecond = tokensPerSecond(chunk.EvalCount, chunk.EvalDuration)
		}
		if err := handler(out); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
}

// Reachable probes the endpoint with a bounded timeout. Any failure,
// including a non-200 status, is false.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.ReachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// postStream issues a streaming POST and returns the open response body.
func (c *Client) postStream(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// tokensPerSecond derives throughput from the endpoint's eval metadata.
// Returns nil when the metadata is absent or unusable.
func tokensPerSecond(evalCount, evalDuration int64) *float64 {
	if evalCount <= 0 || evalDuration <= 0 {
		return nil
	}
	tps := float64(evalCount) / (float64(evalDuration) / 1e9)
	return &tps
}
