package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/username/chatkit/internal/domain/entities"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(filepath.Join(t.TempDir(), "test.db"), "./migrations")
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })

	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return adapter
}

func TestMigrate_Idempotent(t *testing.T) {
	adapter := newTestAdapter(t)

	// Running migrations again must be a no-op.
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}
}

func TestCreateConversation_WithSystemMessage(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("qwen3:0.6b")
	system := entities.NewSystemMessage(conversation.ID, "You are a helpful assistant.")

	if err := adapter.CreateConversation(ctx, conversation, system); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	loaded, err := adapter.GetConversation(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded.Title != conversation.Title {
		t.Errorf("Expected title %q, got %q", conversation.Title, loaded.Title)
	}
	if loaded.ModelName != "qwen3:0.6b" {
		t.Errorf("Expected model qwen3:0.6b, got %q", loaded.ModelName)
	}

	messages, err := adapter.GetMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Role != entities.RoleSystem {
		t.Errorf("Expected system role, got %s", messages[0].Role)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	if _, err := adapter.GetConversation(context.Background(), "missing"); err == nil {
		t.Error("Expected error for missing conversation")
	}
}

func TestGetConversations_OrderedByActivity(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		conversation := entities.NewConversation("qwen3:0.6b")
		conversation.LastActivityAt = base.Add(time.Duration(i) * time.Minute)
		if err := adapter.CreateConversation(ctx, conversation, nil); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
		ids[i] = conversation.ID
	}

	conversations, err := adapter.GetConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("GetConversations failed: %v", err)
	}
	if len(conversations) != 3 {
		t.Fatalf("Expected 3 conversations, got %d", len(conversations))
	}

	// Most recent activity first.
	for i, expected := range []string{ids[2], ids[1], ids[0]} {
		if conversations[i].ID != expected {
			t.Errorf("Position %d: expected %s, got %s", i, expected, conversations[i].ID)
		}
	}

	// Pagination.
	page, err := adapter.GetConversations(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetConversations failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Errorf("Expected middle conversation on page 2, got %+v", page)
	}
}

func TestDeleteConversation_CascadesToMessages(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("qwen3:0.6b")
	system := entities.NewSystemMessage(conversation.ID, "prompt")
	if err := adapter.CreateConversation(ctx, conversation, system); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	user := entities.NewUserMessage(conversation.ID, "hello", nil)
	if err := adapter.SaveMessage(ctx, user); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if err := adapter.DeleteConversation(ctx, conversation.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	messages, err := adapter.GetMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected cascade delete, found %d messages", len(messages))
	}
}

func TestDeleteAllConversations(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		conversation := entities.NewConversation("qwen3:0.6b")
		if err := adapter.CreateConversation(ctx, conversation, nil); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	if err := adapter.DeleteAllConversations(ctx); err != nil {
		t.Fatalf("DeleteAllConversations failed: %v", err)
	}

	conversations, err := adapter.GetConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("GetConversations failed: %v", err)
	}
	if len(conversations) != 0 {
		t.Errorf("Expected no conversations, got %d", len(conversations))
	}
}

func TestAppendExchange_Atomic(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("qwen3:0.6b")
	system := entities.NewSystemMessage(conversation.ID, "prompt")
	if err := adapter.CreateConversation(ctx, conversation, system); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	user := entities.NewUserMessage(conversation.ID, "question", nil)
	time.Sleep(2 * time.Millisecond)
	assistant := entities.NewAssistantPlaceholder(conversation.ID)

	conversation.SetModel("llama3.2:1b")
	conversation.Touch(user.CreatedAt)

	if err := adapter.AppendExchange(ctx, conversation, user, assistant); err != nil {
		t.Fatalf("AppendExchange failed: %v", err)
	}

	messages, err := adapter.GetMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	expectedRoles := []entities.MessageRole{entities.RoleSystem, entities.RoleUser, entities.RoleAssistant}
	for i, role := range expectedRoles {
		if messages[i].Role != role {
			t.Errorf("Position %d: expected role %s, got %s", i, role, messages[i].Role)
		}
	}

	loaded, err := adapter.GetConversation(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded.ModelName != "llama3.2:1b" {
		t.Errorf("Expected updated model, got %q", loaded.ModelName)
	}
	if !loaded.LastActivityAt.After(loaded.CreatedAt) {
		t.Error("Expected activity timestamp advanced")
	}
}

func TestAppendExchange_RollsBackOnConflict(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("qwen3:0.6b")
	if err := adapter.CreateConversation(ctx, conversation, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	user := entities.NewUserMessage(conversation.ID, "question", nil)
	assistant := entities.NewAssistantPlaceholder(conversation.ID)
	assistant.ID = user.ID // forces a primary key conflict on the second insert

	if err := adapter.AppendExchange(ctx, conversation, user, assistant); err == nil {
		t.Fatal("Expected conflict error")
	}

	// The user message must not survive the failed transaction.
	messages, err := adapter.GetMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected rollback to leave no messages, got %d", len(messages))
	}
}

func TestUpdateMessage_StreamedFields(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("qwen3:0.6b")
	if err := adapter.CreateConversation(ctx, conversation, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	assistant := entities.NewAssistantPlaceholder(conversation.ID)
	if err := adapter.SaveMessage(ctx, assistant); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	tps := 33.3
	assistant.Content = "final answer"
	assistant.ThinkingSteps = "chain of reasoning"
	assistant.MarkComplete(&tps)
	assistant.SetTokenCount(7)

	if err := adapter.UpdateMessage(ctx, assistant); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	loaded, err := adapter.GetMessage(ctx, assistant.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if loaded.Content != "final answer" {
		t.Errorf("Expected content persisted, got %q", loaded.Content)
	}
	if loaded.ThinkingSteps != "chain of reasoning" {
		t.Errorf("Expected thinking persisted, got %q", loaded.ThinkingSteps)
	}
	if loaded.DisplayPhase != entities.PhaseComplete {
		t.Errorf("Expected complete phase, got %s", loaded.DisplayPhase)
	}
	if loaded.TokensPerSecond == nil || *loaded.TokensPerSecond != 33.3 {
		t.Errorf("Expected 33.3 tokens/s, got %v", loaded.TokensPerSecond)
	}
	if loaded.TokenCount != 7 {
		t.Errorf("Expected token count 7, got %d", loaded.TokenCount)
	}
}

func TestMessage_NullableFieldsRoundTrip(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	conversation := entities.NewConversation("")
	if err := adapter.CreateConversation(ctx, conversation, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	attachments := []entities.Attachment{
		{FileName: "a.txt", Content: "alpha"},
		{FileName: "b.txt", Content: "beta"},
	}
	user := entities.NewUserMessage(conversation.ID, "see files", attachments)
	if err := adapter.SaveMessage(ctx, user); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	loaded, err := adapter.GetMessage(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if len(loaded.AttachmentNames) != 2 || loaded.AttachmentNames[0] != "a.txt" {
		t.Errorf("Expected attachment names round trip, got %v", loaded.AttachmentNames)
	}
	if loaded.LLMContent == "" {
		t.Error("Expected inlined attachment content persisted")
	}
	if loaded.TokensPerSecond != nil {
		t.Errorf("Expected nil tokens-per-second, got %v", *loaded.TokensPerSecond)
	}

	// Conversation with no model stays empty, not a bogus zero value.
	loadedConv, err := adapter.GetConversation(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loadedConv.ModelName != "" {
		t.Errorf("Expected empty model name, got %q", loadedConv.ModelName)
	}
}
