package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/domain/metrics"
	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/logutil"
	"github.com/username/chatkit/pkg/tokenizer"
)

// OrchestratorConfig holds configuration for the session orchestrator
type OrchestratorConfig struct {
	DefaultModel         string
	SystemPrompt         string
	UserName             string
	ReachabilityInterval time.Duration
	Reducer              *ReducerConfig
}

// SessionOrchestrator owns all conversation and message mutation. Every write
// path, including background pollers and title synthesis, goes through its
// mutex, so there is exactly one writer at any time.
//
// SendMessage is synchronous and single-flight: starting a new send cancels
// and awaits the previous one. Cancellation is not an error; the partial
// response is committed with a stopped suffix.
type SessionOrchestrator struct {
	storage   ports.StoragePort
	llm       ports.LLMPort
	messaging ports.MessagingPort
	catalog   *ModelCatalog
	titles    *TitleSynthesizer
	tokenizer *tokenizer.Tokenizer
	collector *metrics.Collector
	config    *OrchestratorConfig
	logger    *logutil.FieldLogger

	mu           sync.Mutex
	conversation *entities.Conversation
	messages     []*entities.Message
	cancelSend   context.CancelFunc
	sendDone     chan struct{}
	reachable    bool
	reachKnown   bool
}

// NewSessionOrchestrator creates the orchestrator. The tokenizer and
// collector may be nil; token counts and metrics are then skipped.
func NewSessionOrchestrator(
	storage ports.StoragePort,
	llm ports.LLMPort,
	messaging ports.MessagingPort,
	catalog *ModelCatalog,
	titles *TitleSynthesizer,
	tok *tokenizer.Tokenizer,
	collector *metrics.Collector,
	config *OrchestratorConfig,
) *SessionOrchestrator {
	if config == nil {
		config = &OrchestratorConfig{}
	}
	if config.ReachabilityInterval <= 0 {
		config.ReachabilityInterval = constants.DefaultReachabilityInterval
	}
	return &SessionOrchestrator{
		storage:   storage,
		llm:       llm,
		messaging: messaging,
		catalog:   catalog,
		titles:    titles,
		tokenizer: tok,
		collector: collector,
		config:    config,
		logger:    logutil.WithFields(logutil.Fields{"component": "orchestrator"}),
	}
}

// Start launches the reachability poller. It returns immediately; the poller
// stops when ctx is cancelled.
func (o *SessionOrchestrator) Start(ctx context.Context) {
	go o.pollReachability(ctx)
}

// CreateConversation creates and selects a new conversation. An empty model
// name falls back to the configured default.
func (o *SessionOrchestrator) CreateConversation(ctx context.Context, modelName string) (*entities.Conversation, error) {
	if modelName == "" {
		modelName = o.config.DefaultModel
	}

	conversation := entities.NewConversation(modelName)
	systemMessage := entities.NewSystemMessage(conversation.ID, o.effectiveSystemPrompt())
	o.countTokens(systemMessage)

	if err := o.storage.CreateConversation(ctx, conversation, systemMessage); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	o.mu.Lock()
	o.conversation = conversation
	o.messages = []*entities.Message{systemMessage}
	o.mu.Unlock()

	o.publish(fmt.Sprintf(ports.SubjectConversationCreated, conversation.ID), ports.Event{
		Type:           ports.EventConversationCreated,
		ConversationID: conversation.ID,
		Content:        conversation.Title,
	})

	o.logger.Info("conversation created", logutil.Fields{"conversation_id": conversation.ID, "model": modelName})
	return conversation, nil
}

// SelectConversation makes the given conversation the active one and loads
// its messages.
func (o *SessionOrchestrator) SelectConversation(ctx context.Context, id string) error {
	conversation, err := o.storage.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	messages, err := o.storage.GetMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages for %s: %w", id, err)
	}

	o.mu.Lock()
	o.conversation = conversation
	o.messages = messages
	o.mu.Unlock()
	return nil
}

// ActiveConversation returns a copy of the currently selected conversation,
// or nil when none is selected.
func (o *SessionOrchestrator) ActiveConversation() *entities.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conversation == nil {
		return nil
	}
	c := *o.conversation
	return &c
}

// ActiveMessages returns the loaded messages of the active conversation.
func (o *SessionOrchestrator) ActiveMessages() []*entities.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*entities.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// DeleteConversation removes a conversation and its messages. When the
// deleted conversation was active, the most recently active remaining
// conversation is selected.
func (o *SessionOrchestrator) DeleteConversation(ctx context.Context, id string) error {
	if err := o.storage.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}

	o.publish(fmt.Sprintf(ports.SubjectConversationDeleted, id), ports.Event{
		Type:           ports.EventConversationDeleted,
		ConversationID: id,
	})

	o.mu.Lock()
	wasActive := o.conversation != nil && o.conversation.ID == id
	if wasActive {
		o.conversation = nil
		o.messages = nil
	}
	o.mu.Unlock()

	if !wasActive {
		return nil
	}

	remaining, err := o.storage.GetConversations(ctx, 1, 0)
	if err != nil || len(remaining) == 0 {
		return nil
	}
	return o.SelectConversation(ctx, remaining[0].ID)
}

// ClearAllConversations deletes every conversation and clears the selection.
func (o *SessionOrchestrator) ClearAllConversations(ctx context.Context) error {
	if err := o.storage.DeleteAllConversations(ctx); err != nil {
		return fmt.Errorf("failed to delete all conversations: %w", err)
	}

	o.mu.Lock()
	o.conversation = nil
	o.messages = nil
	o.mu.Unlock()

	o.publish(ports.SubjectConversationsCleared, ports.Event{Type: ports.EventConversationsCleared})
	return nil
}

// SendMessage appends a user message and streams the assistant response,
// returning the completed assistant message. It blocks until the response
// reaches a terminal state. A send already in flight is cancelled and awaited
// first.
func (o *SessionOrchestrator) SendMessage(ctx context.Context, text string, attachments []entities.Attachment, modelName string) (*entities.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrMessageEmpty
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, ErrModelNameEmpty
	}

	// Single-flight: take over from any in-flight send before installing
	// this one. The await happens outside the lock so the previous send
	// can finish its terminal commit, which means another caller may have
	// claimed the slot in the meantime; loop until it is observed free
	// under the lock.
	o.mu.Lock()
	for o.cancelSend != nil {
		prevCancel, prevDone := o.cancelSend, o.sendDone
		o.mu.Unlock()
		prevCancel()
		<-prevDone
		o.mu.Lock()
	}
	conversation := o.conversation
	if conversation == nil {
		o.mu.Unlock()
		return nil, ErrNoActiveConversation
	}

	userMessage := entities.NewUserMessage(conversation.ID, text, attachments)
	assistantMessage := entities.NewAssistantPlaceholder(conversation.ID)
	o.countTokens(userMessage)

	conversation.SetModel(modelName)
	conversation.Touch(userMessage.CreatedAt)

	if err := o.storage.AppendExchange(ctx, conversation, userMessage, assistantMessage); err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("failed to append exchange: %w", err)
	}
	o.messages = append(o.messages, userMessage, assistantMessage)

	history := o.buildHistoryLocked(assistantMessage.ID)

	streamCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancelSend, o.sendDone = cancel, done
	o.mu.Unlock()

	// The caller's context cancels the stream too, so an abandoned HTTP
	// request does not leave a model generating forever.
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	o.publish(fmt.Sprintf(ports.SubjectConversationMessage, conversation.ID), ports.Event{
		Type:           ports.EventMessageAppended,
		ConversationID: conversation.ID,
		MessageID:      userMessage.ID,
		Content:        userMessage.Content,
	})

	reducer := NewStreamReducer(o.config.Reducer)
	start := time.Now()
	var finalTPS *float64

	streamErr := o.llm.ChatStream(streamCtx, &ports.ChatRequest{
		Model:    modelName,
		Messages: history,
	}, func(chunk *ports.StreamChunk) error {
		if chunk.Done {
			finalTPS = chunk.TokensPerSecond
			return nil
		}
		o.applyUpdates(conversation.ID, assistantMessage, reducer.Feed(chunk.Delta))
		return nil
	})

	cancelled := streamErr != nil &&
		(errors.Is(streamErr, context.Canceled) || streamCtx.Err() == context.Canceled)

	// Terminal commit. The caller's context may already be gone, so the
	// commit runs under its own timeout.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer persistCancel()

	o.mu.Lock()
	switch {
	case streamErr == nil:
		final := reducer.Finish(finalTPS)
		assistantMessage.ThinkingSteps = final.Thinking
		assistantMessage.Content = final.Answer
		assistantMessage.MarkComplete(finalTPS)
	case cancelled:
		final := reducer.Finish(nil)
		assistantMessage.ThinkingSteps = final.Thinking
		assistantMessage.Content = final.Answer + constants.StoppedByUserSuffix
		assistantMessage.MarkComplete(nil)
	default:
		final := reducer.Finish(nil)
		assistantMessage.ThinkingSteps = final.Thinking
		assistantMessage.Content = final.Answer + fmt.Sprintf(constants.ResponseErrorSuffixFmt, streamErr)
		assistantMessage.MarkComplete(nil)
	}
	o.countTokens(assistantMessage)

	completedAt := time.Now()
	conversation.Touch(completedAt)

	if err := o.storage.UpdateMessage(persistCtx, assistantMessage); err != nil {
		o.logger.Error("failed to persist assistant message", logutil.Fields{"message_id": assistantMessage.ID, "error": err.Error()})
	}
	if err := o.storage.UpdateConversation(persistCtx, conversation); err != nil {
		o.logger.Error("failed to persist conversation", logutil.Fields{"conversation_id": conversation.ID, "error": err.Error()})
	}

	result := *assistantMessage
	// Release the slot only if it is still ours; a takeover may already
	// have installed its own handles.
	if o.sendDone == done {
		o.cancelSend, o.sendDone = nil, nil
	}
	o.mu.Unlock()

	cancel()
	close(done)

	o.publish(fmt.Sprintf(ports.SubjectConversationCompleted, conversation.ID), ports.Event{
		Type:           ports.EventMessageCompleted,
		ConversationID: conversation.ID,
		MessageID:      result.ID,
		Content:        result.Content,
		Data: map[string]interface{}{
			"thinking_steps":    result.ThinkingSteps,
			"tokens_per_second": result.TokensPerSecond,
			"cancelled":         cancelled,
			"failed":            streamErr != nil && !cancelled,
		},
	})

	switch {
	case streamErr == nil:
		o.recordCompleted(time.Since(start), result.TokensPerSecond)
		o.synthesizeTitleAsync(conversation.ID, modelName)
		return &result, nil
	case cancelled:
		o.recordCancelled(time.Since(start))
		return &result, nil
	default:
		o.recordFailed(time.Since(start))
		o.publish(ports.SubjectSystemError, ports.Event{
			Type:           ports.EventSystemError,
			ConversationID: conversation.ID,
			MessageID:      result.ID,
			Content:        streamErr.Error(),
		})
		return &result, &RequestFailedError{Err: streamErr}
	}
}

// StopGenerating cancels the in-flight send, if any. Calling it while idle
// is a no-op, and calling it twice is harmless.
func (o *SessionOrchestrator) StopGenerating() {
	o.mu.Lock()
	cancel := o.cancelSend
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RefreshModels fetches the model list from the endpoint, replaces the cache
// and announces the new list.
func (o *SessionOrchestrator) RefreshModels(ctx context.Context) ([]string, error) {
	models, err := o.catalog.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(ports.SubjectSystemModels, ports.Event{
		Type: ports.EventModelsRefreshed,
		Data: map[string]interface{}{"models": models},
	})
	return models, nil
}

// CheckReachability probes the endpoint once and folds the result into the
// last-value cache. Transitions publish an event; an unreachable-to-reachable
// transition with an empty model cache triggers exactly one refresh.
func (o *SessionOrchestrator) CheckReachability(ctx context.Context) bool {
	reachable := o.llm.Reachable(ctx)

	o.mu.Lock()
	changed := !o.reachKnown || o.reachable != reachable
	o.reachable = reachable
	o.reachKnown = true
	o.mu.Unlock()

	if !changed {
		return reachable
	}

	o.publish(ports.SubjectSystemReachability, ports.Event{
		Type: ports.EventReachabilityChanged,
		Data: map[string]interface{}{"reachable": reachable},
	})

	if reachable && len(o.catalog.Cached()) == 0 {
		if _, err := o.RefreshModels(ctx); err != nil {
			o.logger.Warn("model refresh after reachability recovery failed", logutil.Fields{"error": err.Error()})
		}
	}
	return reachable
}

// Reachable returns the last observed reachability state.
func (o *SessionOrchestrator) Reachable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reachable
}

// pollReachability drives CheckReachability on a fixed interval.
func (o *SessionOrchestrator) pollReachability(ctx context.Context) {
	o.CheckReachability(ctx)

	ticker := time.NewTicker(o.config.ReachabilityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.CheckReachability(ctx)
		}
	}
}

// applyUpdates folds reducer updates into the streaming assistant message
// and publishes a delta event per flush.
func (o *SessionOrchestrator) applyUpdates(conversationID string, message *entities.Message, updates []Update) {
	for _, update := range updates {
		o.mu.Lock()
		message.DisplayPhase = update.Phase
		message.ThinkingSteps = update.Thinking
		message.Content = update.Answer
		o.mu.Unlock()

		o.publish(fmt.Sprintf(ports.SubjectConversationDelta, conversationID), ports.Event{
			Type:           ports.EventMessageDelta,
			ConversationID: conversationID,
			MessageID:      message.ID,
			Content:        update.Answer,
			Data: map[string]interface{}{
				"phase":          string(update.Phase),
				"thinking_steps": update.Thinking,
			},
		})
	}
}

// buildHistoryLocked assembles the chat request history from the loaded
// messages, skipping the streaming placeholder. Caller holds o.mu.
func (o *SessionOrchestrator) buildHistoryLocked(excludeID string) []ports.ChatMessage {
	history := make([]ports.ChatMessage, 0, len(o.messages))
	for _, msg := range o.messages {
		if msg.ID == excludeID {
			continue
		}
		history = append(history, ports.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.ContextContent(),
		})
	}
	return history
}

// synthesizeTitleAsync runs title synthesis in the background and commits
// the result if one is produced. Failures are logged and dropped.
func (o *SessionOrchestrator) synthesizeTitleAsync(conversationID, modelName string) {
	if o.titles == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.LongHTTPTimeout)
		defer cancel()

		o.mu.Lock()
		if o.conversation == nil || o.conversation.ID != conversationID {
			o.mu.Unlock()
			return
		}
		conversation := o.conversation
		messages := make([]*entities.Message, len(o.messages))
		copy(messages, o.messages)
		o.mu.Unlock()

		title := o.titles.Synthesize(ctx, conversation, messages, modelName)
		if title == "" {
			return
		}

		o.mu.Lock()
		if o.conversation == nil || o.conversation.ID != conversationID {
			o.mu.Unlock()
			return
		}
		conversation.SetTitle(title)
		err := o.storage.UpdateConversation(ctx, conversation)
		o.mu.Unlock()
		if err != nil {
			o.logger.Warn("failed to persist title", logutil.Fields{"conversation_id": conversationID, "error": err.Error()})
			return
		}

		o.publish(fmt.Sprintf(ports.SubjectConversationTitle, conversationID), ports.Event{
			Type:           ports.EventTitleUpdated,
			ConversationID: conversationID,
			Content:        title,
		})
	}()
}

// effectiveSystemPrompt combines the configured prompt with the user-name
// personalization.
func (o *SessionOrchestrator) effectiveSystemPrompt() string {
	prompt := o.config.SystemPrompt
	if o.config.UserName != "" {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += fmt.Sprintf("The user's name is %s.", o.config.UserName)
	}
	return prompt
}

func (o *SessionOrchestrator) countTokens(message *entities.Message) {
	if o.tokenizer == nil {
		return
	}
	message.SetTokenCount(o.tokenizer.CountTokens(message.ContextContent()))
}

// publish sends an event on the bus under its own timeout. Publishing is
// best-effort; failures are logged, never propagated.
func (o *SessionOrchestrator) publish(subject string, event ports.Event) {
	if o.messaging == nil {
		return
	}
	event.Timestamp = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), constants.MessagingTimeout)
	defer cancel()
	if err := o.messaging.PublishJSON(ctx, subject, event); err != nil {
		o.logger.Warn("failed to publish event", logutil.Fields{"subject": subject, "error": err.Error()})
	}
}

func (o *SessionOrchestrator) recordCompleted(d time.Duration, tps *float64) {
	if o.collector != nil {
		o.collector.RecordSendCompleted(d, tps)
	}
}

func (o *SessionOrchestrator) recordCancelled(d time.Duration) {
	if o.collector != nil {
		o.collector.RecordSendCancelled(d)
	}
}

func (o *SessionOrchestrator) recordFailed(d time.Duration) {
	if o.collector != nil {
		o.collector.RecordSendFailed(d)
	}
}

// forwardCancel propagates cancellation of the caller's context to the
// stream. The returned stop function releases the goroutine.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
