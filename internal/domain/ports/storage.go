package ports

import (
	"context"

	"github.com/username/chatkit/internal/domain/entities"
)

// StoragePort defines the interface for persistent storage operations.
// Multi-row units of work (CreateConversation, AppendExchange) commit in a
// single transaction: either every row lands or none do.
type StoragePort interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conversation *entities.Conversation, systemMessage *entities.Message) error
	GetConversation(ctx context.Context, id string) (*entities.Conversation, error)
	GetConversations(ctx context.Context, limit int, offset int) ([]*entities.Conversation, error)
	UpdateConversation(ctx context.Context, conversation *entities.Conversation) error
	DeleteConversation(ctx context.Context, id string) error
	DeleteAllConversations(ctx context.Context) error

	// Message operations
	SaveMessage(ctx context.Context, message *entities.Message) error
	UpdateMessage(ctx context.Context, message *entities.Message) error
	GetMessage(ctx context.Context, id string) (*entities.Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]*entities.Message, error)

	// AppendExchange stores a user message and the assistant placeholder
	// that answers it, and advances the conversation's activity timestamp,
	// atomically.
	AppendExchange(ctx context.Context, conversation *entities.Conversation, userMessage, assistantMessage *entities.Message) error

	// Health check
	Ping(ctx context.Context) error

	// Migration support
	Migrate(ctx context.Context) error
}
