package entities

import (
	"strings"
	"time"
)

// DefaultTitlePrefix is the placeholder title given to new conversations
// until a real title is synthesized.
const DefaultTitlePrefix = "New Chat "

// Conversation represents a chat conversation. Messages belong to it by
// conversation ID; the conversation itself carries no message list.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	ModelName      string    `json:"model_name,omitempty"` // Preferred model for this conversation
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewConversation creates a new conversation with a placeholder title derived
// from the generated ID.
func NewConversation(modelName string) *Conversation {
	now := time.Now()
	id := generateID()
	suffix := id
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return &Conversation{
		ID:             id,
		Title:          DefaultTitlePrefix + suffix,
		ModelName:      modelName,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

// SetTitle updates the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
}

// SetModel updates the preferred model for this conversation.
func (c *Conversation) SetModel(modelName string) {
	c.ModelName = modelName
}

// Touch advances the last-activity timestamp. Ordering of the conversation
// list depends on this value, so callers pass the moment the activity
// actually completed rather than time.Now at save time.
func (c *Conversation) Touch(t time.Time) {
	if t.After(c.LastActivityAt) {
		c.LastActivityAt = t
	}
}

// HasPlaceholderTitle reports whether the title is still the generated
// placeholder and therefore eligible for synthesis.
func (c *Conversation) HasPlaceholderTitle() bool {
	return c.Title == "" || strings.HasPrefix(c.Title, DefaultTitlePrefix)
}
