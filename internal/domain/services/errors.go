package services

import (
	"errors"
	"fmt"
)

// Precondition errors returned by SendMessage before any state changes.
var (
	ErrNoActiveConversation = errors.New("no active conversation selected")
	ErrModelNameEmpty       = errors.New("model name is empty")
	ErrMessageEmpty         = errors.New("message text is empty")
)

// ErrConversationNotFound is returned when a conversation id does not
// resolve to a stored conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// RequestFailedError reports a transport or endpoint failure during a send.
// The partial response has already been committed with an error suffix by the
// time this is returned.
type RequestFailedError struct {
	Err error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}
