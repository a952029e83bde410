package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/username/chatkit/internal/domain/entities"
)

// Tokenizer provides token counting functionality
type Tokenizer struct {
	encoding     *tiktoken.Tiktoken
	encodingName string
}

// NewTokenizer creates a new tokenizer for the given model
func NewTokenizer(model string) (*Tokenizer, error) {
	var encodingName string

	// Map model names to appropriate encodings
	switch {
	case strings.Contains(model, "gpt-4"), strings.Contains(model, "gpt-3.5"):
		encodingName = "cl100k_base"
	case strings.Contains(model, "gpt-3"):
		encodingName = "p50k_base"
	default:
		// For local models, use cl100k_base as a reasonable default
		encodingName = "cl100k_base"
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &Tokenizer{
		encoding:     encoding,
		encodingName: encodingName,
	}, nil
}

// CountTokens counts tokens in a text string
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	tokens := t.encoding.Encode(text, nil, nil)
	return len(tokens)
}

// CountMessageTokens counts tokens in a message, including role and
// formatting overhead
func (t *Tokenizer) CountMessageTokens(message *entities.Message) int {
	if message == nil {
		return 0
	}

	contentTokens := t.CountTokens(message.ContextContent())
	roleTokens := t.CountTokens(string(message.Role))
	formatOverhead := 4 // Approximate per-message chat formatting overhead

	return contentTokens + roleTokens + formatOverhead
}

// CountConversationTokens counts total tokens in a conversation
func (t *Tokenizer) CountConversationTokens(messages []*entities.Message) int {
	total := 0
	for _, message := range messages {
		total += t.CountMessageTokens(message)
	}
	// Small buffer for conversation-level formatting
	return total + 2
}

// TruncateToTokenLimit truncates text to fit within a token limit
func (t *Tokenizer) TruncateToTokenLimit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	return t.encoding.Decode(tokens[:maxTokens])
}

// EncodingName returns the name of the active encoding.
func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}
