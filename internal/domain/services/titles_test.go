package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/domain/ports"
)

// generatingLLM answers every GenerateStream call with a fixed response.
func generatingLLM(response string) *mockLLM {
	return &mockLLM{
		generateFn: func(ctx context.Context, req *ports.GenerateRequest, handler ports.StreamHandler) error {
			handler(&ports.StreamChunk{Delta: response})
			handler(&ports.StreamChunk{Done: true})
			return nil
		},
	}
}

func titleFixture() (*entities.Conversation, []*entities.Message) {
	conversation := entities.NewConversation("qwen3:0.6b")
	messages := []*entities.Message{
		entities.NewSystemMessage(conversation.ID, "You are a helpful assistant."),
		entities.NewUserMessage(conversation.ID, "How do I configure NATS JetStream retention?", nil),
		entities.NewAssistantPlaceholder(conversation.ID),
	}
	messages[2].Content = "You set MaxAge on the stream config."
	messages[2].MarkComplete(nil)
	return conversation, messages
}

func TestSynthesize_ModelTitle(t *testing.T) {
	ts := NewTitleSynthesizer(generatingLLM("JetStream Retention Setup"), true)
	conversation, messages := titleFixture()

	title := ts.Synthesize(context.Background(), conversation, messages, "qwen3:0.6b")
	if title != "JetStream Retention Setup" {
		t.Errorf("Expected model title, got %q", title)
	}
}

func TestSynthesize_SkipsRealTitle(t *testing.T) {
	ts := NewTitleSynthesizer(generatingLLM("Should Not Appear"), true)
	conversation, messages := titleFixture()
	conversation.SetTitle("Already named")

	if title := ts.Synthesize(context.Background(), conversation, messages, "qwen3:0.6b"); title != "" {
		t.Errorf("Expected no title for named conversation, got %q", title)
	}
}

func TestSynthesize_RequiresTwoNonSystemMessages(t *testing.T) {
	ts := NewTitleSynthesizer(generatingLLM("Should Not Appear"), true)
	conversation, messages := titleFixture()

	// Only the system message and the user message.
	if title := ts.Synthesize(context.Background(), conversation, messages[:2], "qwen3:0.6b"); title != "" {
		t.Errorf("Expected no title with one non-system message, got %q", title)
	}
}

func TestSynthesize_FallbackOnModelError(t *testing.T) {
	llm := &mockLLM{
		generateFn: func(ctx context.Context, req *ports.GenerateRequest, handler ports.StreamHandler) error {
			return errors.New("endpoint down")
		},
	}
	ts := NewTitleSynthesizer(llm, true)
	conversation, messages := titleFixture()

	title := ts.Synthesize(context.Background(), conversation, messages, "qwen3:0.6b")
	if !strings.HasPrefix(title, "How do I configure NATS JetStream") {
		t.Errorf("Expected fallback from user message, got %q", title)
	}
	if !strings.HasSuffix(title, "...") {
		t.Errorf("Expected truncation ellipsis, got %q", title)
	}
}

func TestSynthesize_FallbackWhenLLMDisabled(t *testing.T) {
	llm := generatingLLM("Should Not Appear")
	ts := NewTitleSynthesizer(llm, false)
	conversation, messages := titleFixture()

	title := ts.Synthesize(context.Background(), conversation, messages, "qwen3:0.6b")
	if strings.Contains(title, "Should Not Appear") {
		t.Errorf("Model consulted despite being disabled: %q", title)
	}
	if title == "" {
		t.Error("Expected fallback title")
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain", "Chat Setup Help", "Chat Setup Help"},
		{"surrounding whitespace", "  Chat Setup Help \n", "Chat Setup Help"},
		{"double quotes", `"Chat Setup Help"`, "Chat Setup Help"},
		{"single quotes", "'Chat Setup Help'", "Chat Setup Help"},
		{"title prefix", "Title: Chat Setup Help", "Chat Setup Help"},
		{"title prefix lowercase", "title: Chat Setup Help", "Chat Setup Help"},
		{"thinking segment", "<think>the user wants a title</think>Chat Setup Help", "Chat Setup Help"},
		{"empty", "", ""},
		{"untitled sentinel", "Untitled", ""},
		{"no title sentinel", "No Title", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeTitle(tt.raw); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	conversationID := "c1"
	short := entities.NewUserMessage(conversationID, "Short question", nil)
	long := entities.NewUserMessage(conversationID, "This question is long enough that the fallback must truncate it", nil)
	assistant := entities.NewAssistantPlaceholder(conversationID)

	tests := []struct {
		name     string
		messages []*entities.Message
		expected string
	}{
		{"short user message", []*entities.Message{short, assistant}, "Short question"},
		{"long user message truncated", []*entities.Message{long, assistant}, "This question is long enough that t..."},
		{"no user message", []*entities.Message{assistant}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackTitle(tt.messages); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSynthesize_SentinelFallsBack(t *testing.T) {
	ts := NewTitleSynthesizer(generatingLLM("untitled"), true)
	conversation, messages := titleFixture()

	title := ts.Synthesize(context.Background(), conversation, messages, "qwen3:0.6b")
	if title == "" || strings.EqualFold(title, "untitled") {
		t.Errorf("Expected heuristic fallback for sentinel response, got %q", title)
	}
}
