package entities

import (
	"fmt"
	"strings"
	"time"
)

// MessageRole represents the role of a message in a conversation
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// DisplayPhase tracks how far an assistant response has progressed while it
// streams. Non-assistant messages are always DisplayComplete.
type DisplayPhase string

const (
	PhasePending   DisplayPhase = "pending"
	PhaseThinking  DisplayPhase = "thinking"
	PhaseAnswering DisplayPhase = "answering"
	PhaseComplete  DisplayPhase = "complete"
)

// Attachment is a file attached to a user message. Its content is inlined
// into the LLM-facing content of the message, never into the display content.
type Attachment struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Message represents a single message in a conversation
type Message struct {
	ID              string       `json:"id"`
	ConversationID  string       `json:"conversation_id"`
	Role            MessageRole  `json:"role"`
	Content         string       `json:"content"`
	LLMContent      string       `json:"llm_content,omitempty"` // Content sent to the model when it differs from the display content
	AttachmentNames []string     `json:"attachment_names,omitempty"`
	ThinkingSteps   string       `json:"thinking_steps,omitempty"`
	DisplayPhase    DisplayPhase `json:"display_phase"`
	TokensPerSecond *float64     `json:"tokens_per_second,omitempty"`
	TokenCount      int          `json:"token_count"`
	Streaming       bool         `json:"streaming"` // Transient, not persisted
	CreatedAt       time.Time    `json:"created_at"`
}

// NewSystemMessage creates the system message that opens a conversation.
func NewSystemMessage(conversationID, content string) *Message {
	return &Message{
		ID:             generateID(),
		ConversationID: conversationID,
		Role:           RoleSystem,
		Content:        content,
		DisplayPhase:   PhaseComplete,
		CreatedAt:      time.Now(),
	}
}

// NewUserMessage creates a user message. Attachment contents are inlined into
// the LLM-facing content only; the display content stays as typed.
func NewUserMessage(conversationID, content string, attachments []Attachment) *Message {
	msg := &Message{
		ID:             generateID(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		DisplayPhase:   PhaseComplete,
		CreatedAt:      time.Now(),
	}
	if len(attachments) > 0 {
		var b strings.Builder
		b.WriteString(content)
		for _, att := range attachments {
			b.WriteString(fmt.Sprintf("\n\n--- Attached File: %s ---\n%s", att.FileName, att.Content))
			msg.AttachmentNames = append(msg.AttachmentNames, att.FileName)
		}
		msg.LLMContent = b.String()
	}
	return msg
}

// NewAssistantPlaceholder creates the empty assistant message that will be
// filled in as the response streams.
func NewAssistantPlaceholder(conversationID string) *Message {
	return &Message{
		ID:             generateID(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        "",
		DisplayPhase:   PhasePending,
		Streaming:      true,
		CreatedAt:      time.Now(),
	}
}

// ContextContent returns the content that should be sent to the model:
// the LLM-facing content when set, otherwise the display content.
func (m *Message) ContextContent() string {
	if m.LLMContent != "" {
		return m.LLMContent
	}
	return m.Content
}

// MarkComplete finalizes a streamed assistant message. A nil rate means the
// endpoint reported no throughput metadata.
func (m *Message) MarkComplete(tokensPerSecond *float64) {
	m.DisplayPhase = PhaseComplete
	m.TokensPerSecond = tokensPerSecond
	m.Streaming = false
}

// SetTokenCount sets the token count for the message
func (m *Message) SetTokenCount(count int) {
	m.TokenCount = count
}

// IsFromUser returns true if the message is from a user
func (m *Message) IsFromUser() bool {
	return m.Role == RoleUser
}

// IsFromAssistant returns true if the message is from an assistant
func (m *Message) IsFromAssistant() bool {
	return m.Role == RoleAssistant
}
