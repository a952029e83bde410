package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/dbutil"
)

// Adapter implements the StoragePort interface using SQLite
type Adapter struct {
	db             *sql.DB
	wrapper        *dbutil.Wrapper
	migrationsPath string
}

var _ ports.StoragePort = (*Adapter)(nil)

// NewAdapter creates a new SQLite storage adapter
func NewAdapter(dbPath, migrationsPath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(constants.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(constants.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(constants.DatabaseConnMaxLifetime)

	return &Adapter{
		db:             db,
		wrapper:        dbutil.NewWrapper(db, constants.DatabaseTimeout),
		migrationsPath: migrationsPath,
	}, nil
}

// Migrate runs database migrations
func (a *Adapter) Migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, constants.MigrationsTableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s", constants.MigrationsTableName))
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	migrationFiles, err := filepath.Glob(filepath.Join(a.migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(migrationFiles)

	for _, file := range migrationFiles {
		version := strings.TrimSuffix(filepath.Base(file), ".sql")
		if applied[version] {
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		err = a.wrapper.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", constants.MigrationsTableName), version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Ping checks database connectivity
func (a *Adapter) Ping(ctx context.Context) error {
	return a.wrapper.PingWithTimeout(ctx)
}

// Close closes the database connection
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Conversation operations

// CreateConversation stores a conversation and its opening system message in
// one transaction.
func (a *Adapter) CreateConversation(ctx context.Context, conversation *entities.Conversation, systemMessage *entities.Message) error {
	return a.wrapper.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := insertConversation(ctx, tx, conversation); err != nil {
			return err
		}
		if systemMessage != nil {
			if err := insertMessage(ctx, tx, systemMessage); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	row := a.wrapper.QueryRow(ctx, `
		SELECT id, title, model_name, last_activity_at, created_at
		FROM conversations WHERE id = ?
	`, id)

	conversation, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conversation, nil
}

// GetConversations returns conversations ordered by most recent activity.
func (a *Adapter) GetConversations(ctx context.Context, limit int, offset int) ([]*entities.Conversation, error) {
	rows, err := a.wrapper.QueryRows(ctx, `
		SELECT id, title, model_name, last_activity_at, created_at
		FROM conversations
		ORDER BY last_activity_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*entities.Conversation
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	return conversations, rows.Err()
}

func (a *Adapter) UpdateConversation(ctx context.Context, conversation *entities.Conversation) error {
	_, err := a.wrapper.ExecQuery(ctx, `
		UPDATE conversations
		SET title = ?, model_name = ?, last_activity_at = ?
		WHERE id = ?
	`,
		conversation.Title,
		nullString(conversation.ModelName),
		conversation.LastActivityAt,
		conversation.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation; messages cascade via the
// foreign key.
func (a *Adapter) DeleteConversation(ctx context.Context, id string) error {
	_, err := a.wrapper.ExecQuery(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteAllConversations(ctx context.Context) error {
	_, err := a.wrapper.ExecQuery(ctx, "DELETE FROM conversations")
	if err != nil {
		return fmt.Errorf("failed to delete all conversations: %w", err)
	}
	return nil
}

// Message operations

func (a *Adapter) SaveMessage(ctx context.Context, message *entities.Message) error {
	return a.wrapper.SaveWithRetry(ctx, func(tx *sql.Tx) error {
		return insertMessage(ctx, tx, message)
	}, 3)
}

func (a *Adapter) UpdateMessage(ctx context.Context, message *entities.Message) error {
	attachments, err := marshalAttachmentNames(message.AttachmentNames)
	if err != nil {
		return err
	}

	_, err = a.wrapper.ExecQuery(ctx, `
		UPDATE messages
		SET content = ?, llm_content = ?, attachment_names = ?, thinking_steps = ?,
		    display_phase = ?, tokens_per_second = ?, token_count = ?
		WHERE id = ?
	`,
		message.Content,
		nullString(message.LLMContent),
		attachments,
		nullString(message.ThinkingSteps),
		string(message.DisplayPhase),
		nullFloat(message.TokensPerSecond),
		message.TokenCount,
		message.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (a *Adapter) GetMessage(ctx context.Context, id string) (*entities.Message, error) {
	row := a.wrapper.QueryRow(ctx, `
		SELECT id, conversation_id, role, content, llm_content, attachment_names,
		       thinking_steps, display_phase, tokens_per_second, token_count, created_at
		FROM messages WHERE id = ?
	`, id)

	message, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

// GetMessages returns the conversation's messages in chronological order.
func (a *Adapter) GetMessages(ctx context.Context, conversationID string) ([]*entities.Message, error) {
	rows, err := a.wrapper.QueryRows(ctx, `
		SELECT id, conversation_id, role, content, llm_content, attachment_names,
		       thinking_steps, display_phase, tokens_per_second, token_count, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*entities.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// AppendExchange stores the user message, the assistant placeholder and the
// advanced conversation timestamp in a single transaction.
func (a *Adapter) AppendExchange(ctx context.Context, conversation *entities.Conversation, userMessage, assistantMessage *entities.Message) error {
	return a.wrapper.SaveWithRetry(ctx, func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, userMessage); err != nil {
			return err
		}
		if err := insertMessage(ctx, tx, assistantMessage); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE conversations SET model_name = ?, last_activity_at = ? WHERE id = ?
		`, nullString(conversation.ModelName), conversation.LastActivityAt, conversation.ID)
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	}, 3)
}

// Row helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func insertConversation(ctx context.Context, tx *sql.Tx, conversation *entities.Conversation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model_name, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		conversation.ID,
		conversation.Title,
		nullString(conversation.ModelName),
		conversation.LastActivityAt,
		conversation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, message *entities.Message) error {
	attachments, err := marshalAttachmentNames(message.AttachmentNames)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, llm_content, attachment_names,
		                      thinking_steps, display_phase, tokens_per_second, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		message.ID,
		message.ConversationID,
		string(message.Role),
		message.Content,
		nullString(message.LLMContent),
		attachments,
		nullString(message.ThinkingSteps),
		string(message.DisplayPhase),
		nullFloat(message.TokensPerSecond),
		message.TokenCount,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func scanConversation(row rowScanner) (*entities.Conversation, error) {
	var conversation entities.Conversation
	var modelName sql.NullString

	err := row.Scan(
		&conversation.ID,
		&conversation.Title,
		&modelName,
		&conversation.LastActivityAt,
		&conversation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if modelName.Valid {
		conversation.ModelName = modelName.String
	}
	return &conversation, nil
}

func scanMessage(row rowScanner) (*entities.Message, error) {
	var message entities.Message
	var llmContent, attachments, thinkingSteps sql.NullString
	var tokensPerSecond sql.NullFloat64
	var displayPhase string

	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.Role,
		&message.Content,
		&llmContent,
		&attachments,
		&thinkingSteps,
		&displayPhase,
		&tokensPerSecond,
		&message.TokenCount,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if llmContent.Valid {
		message.LLMContent = llmContent.String
	}
	if thinkingSteps.Valid {
		message.ThinkingSteps = thinkingSteps.String
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &message.AttachmentNames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachment names: %w", err)
		}
	}
	if tokensPerSecond.Valid {
		message.TokensPerSecond = &tokensPerSecond.Float64
	}
	message.DisplayPhase = entities.DisplayPhase(displayPhase)
	return &message, nil
}

func marshalAttachmentNames(names []string) (sql.NullString, error) {
	if len(names) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal attachment names: %w", err)
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
