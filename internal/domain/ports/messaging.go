package ports

import (
	"context"
	"time"
)

// MessageHandler defines a function type for handling incoming messages
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// MessagingPort defines the interface for event bus operations
type MessagingPort interface {
	// Publish sends a message to the specified subject
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishJSON publishes a JSON-serializable object to the subject
	PublishJSON(ctx context.Context, subject string, obj interface{}) error

	// Subscribe listens for messages on the specified subject
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error

	// Unsubscribe stops listening to a subject
	Unsubscribe(ctx context.Context, subject string) error

	// Close closes the messaging connection
	Close() error

	// Health check
	Ping() error
}

// Event is the single payload shape published on the bus. Data carries
// event-specific extras (model lists, reachability flags, error text).
type Event struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	Content        string                 `json:"content,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Standard subjects used across the system
const (
	// Conversation events (formatted with the conversation id)
	SubjectConversationCreated   = "chat.conversation.%s.created"
	SubjectConversationDeleted   = "chat.conversation.%s.deleted"
	SubjectConversationMessage   = "chat.conversation.%s.message"
	SubjectConversationDelta     = "chat.conversation.%s.delta"
	SubjectConversationCompleted = "chat.conversation.%s.completed"
	SubjectConversationTitle     = "chat.conversation.%s.title"

	// System events
	SubjectConversationsCleared = "chat.system.conversations.cleared"
	SubjectSystemReachability   = "chat.system.reachability"
	SubjectSystemModels         = "chat.system.models"
	SubjectSystemError          = "chat.system.error"

	// SubjectAllEvents matches every subject the engine publishes.
	SubjectAllEvents = "chat.>"
)

// Event type names carried in Event.Type
const (
	EventConversationCreated  = "conversation.created"
	EventConversationDeleted  = "conversation.deleted"
	EventConversationsCleared = "conversations.cleared"
	EventMessageAppended      = "message.appended"
	EventMessageDelta         = "message.delta"
	EventMessageCompleted     = "message.completed"
	EventTitleUpdated         = "title.updated"
	EventReachabilityChanged  = "reachability.changed"
	EventModelsRefreshed      = "models.refreshed"
	EventSystemError          = "system.error"
)
