package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/logutil"
)

// TitleSynthesizer derives a short human-readable title for a conversation
// after its first exchange completes. It never returns an error: when the
// model path fails or produces an unusable result, a deterministic fallback
// is derived from the first user message instead.
type TitleSynthesizer struct {
	llm    ports.LLMPort
	useLLM bool
	logger *logutil.FieldLogger
}

// NewTitleSynthesizer creates a synthesizer. When useLLM is false the model
// is never consulted and only the fallback path runs.
func NewTitleSynthesizer(llm ports.LLMPort, useLLM bool) *TitleSynthesizer {
	return &TitleSynthesizer{
		llm:    llm,
		useLLM: useLLM,
		logger: logutil.WithFields(logutil.Fields{"component": "titles"}),
	}
}

// Synthesize returns a title for the conversation, or "" when the
// conversation is not yet eligible (real title already set, or fewer than
// two non-system messages).
func (ts *TitleSynthesizer) Synthesize(ctx context.Context, conversation *entities.Conversation, messages []*entities.Message, modelName string) string {
	if !conversation.HasPlaceholderTitle() {
		return ""
	}

	var nonSystem []*entities.Message
	for _, msg := range messages {
		if msg.Role != entities.RoleSystem {
			nonSystem = append(nonSystem, msg)
		}
	}
	if len(nonSystem) < 2 {
		return ""
	}

	if ts.useLLM && modelName != "" {
		if title := ts.synthesizeWithModel(ctx, nonSystem, modelName); title != "" {
			return title
		}
		ts.logger.Debug("model produced no usable title, using fallback")
	}

	return fallbackTitle(nonSystem)
}

// synthesizeWithModel asks the endpoint for a title and sanitizes the result.
// Returns "" on any failure or sentinel response.
func (ts *TitleSynthesizer) synthesizeWithModel(ctx context.Context, messages []*entities.Message, modelName string) string {
	limit := constants.TitleContextMessages
	if len(messages) < limit {
		limit = len(messages)
	}

	var b strings.Builder
	b.WriteString("Generate a concise 3-5 word title for this conversation. Respond with the title only, no quotes, no punctuation at the end.\n\n")
	for _, msg := range messages[:limit] {
		b.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}

	var raw strings.Builder
	err := ts.llm.GenerateStream(ctx, &ports.GenerateRequest{
		Model:  modelName,
		Prompt: b.String(),
	}, func(chunk *ports.StreamChunk) error {
		raw.WriteString(chunk.Delta)
		return nil
	})
	if err != nil {
		ts.logger.Debug("title generation failed", logutil.Fields{"error": err.Error()})
		return ""
	}

	return sanitizeTitle(raw.String())
}

// sanitizeTitle normalizes a model-produced title and rejects sentinel
// non-answers. Returns "" when the result is unusable.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)

	// Thinking-capable models may emit a reasoning segment even for
	// single-shot prompts; keep only what follows it.
	if idx := strings.LastIndex(title, constants.ThinkingCloseMarker); idx >= 0 {
		title = strings.TrimSpace(title[idx+len(constants.ThinkingCloseMarker):])
	}

	if len(title) > 0 {
		lower := strings.ToLower(title)
		if strings.HasPrefix(lower, "title:") {
			title = strings.TrimSpace(title[len("title:"):])
		}
	}
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)

	switch strings.ToLower(title) {
	case "", "no title", "untitled":
		return ""
	}
	return title
}

// fallbackTitle derives a title from the first non-empty user message.
func fallbackTitle(messages []*entities.Message) string {
	for _, msg := range messages {
		if msg.Role != entities.RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		if len(text) > constants.TitleFallbackLength {
			return text[:constants.TitleFallbackLength] + "..."
		}
		return text
	}
	return ""
}
