package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error codes surfaced verbatim to clients.
const (
	CodeEmptyMessage    = "EMPTY_MESSAGE"
	CodeMessageTooLong  = "MESSAGE_TOO_LONG"
	CodeInvalidRole     = "INVALID_ROLE"
	CodeTooManyMessages = "TOO_MANY_MESSAGES"
)

// ValidationError carries a stable error code alongside a human-readable
// message. The code travels unchanged from backend to client.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Limits bounds individual messages and whole conversations.
type Limits struct {
	MaxMessageLength int
	MaxMessages      int
}

// ValidateMessage checks the structural invariants of a single message:
// non-blank content, bounded length, and an enumerated role. Pure and
// synchronous; runs identically as the client pre-flight and the backend
// authoritative check.
func ValidateMessage(msg ChatMessage, limits Limits) error {
	if strings.TrimSpace(msg.Content) == "" {
		return &ValidationError{Code: CodeEmptyMessage, Message: "message content cannot be empty"}
	}
	if limits.MaxMessageLength > 0 && len(msg.Content) > limits.MaxMessageLength {
		return &ValidationError{
			Code:    CodeMessageTooLong,
			Message: fmt.Sprintf("message exceeds maximum length of %d characters", limits.MaxMessageLength),
		}
	}
	if !msg.Role.IsValid() {
		return &ValidationError{
			Code:    CodeInvalidRole,
			Message: fmt.Sprintf("invalid message role: %q", msg.Role),
		}
	}
	return nil
}

// ValidateConversation checks the conversation length bounds before any
// per-message validation, then validates each message in order.
func ValidateConversation(messages []ChatMessage, limits Limits) error {
	if len(messages) == 0 {
		return &ValidationError{Code: CodeEmptyMessage, Message: "conversation has no messages"}
	}
	if limits.MaxMessages > 0 && len(messages) > limits.MaxMessages {
		return &ValidationError{
			Code:    CodeTooManyMessages,
			Message: fmt.Sprintf("conversation exceeds maximum of %d messages", limits.MaxMessages),
		}
	}
	for _, msg := range messages {
		if err := ValidateMessage(msg, limits); err != nil {
			return err
		}
	}
	return nil
}

// TruncateMessage clips content to the configured maximum so that a client can
// degrade gracefully instead of rejecting outright. Returns the message
// unchanged when it already fits.
func TruncateMessage(msg ChatMessage, limits Limits) ChatMessage {
	if limits.MaxMessageLength > 0 && len(msg.Content) > limits.MaxMessageLength {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := limits.MaxMessageLength
		for cut > 0 && !utf8.RuneStart(msg.Content[cut]) {
			cut--
		}
		msg.Content = msg.Content[:cut]
	}
	return msg
}
