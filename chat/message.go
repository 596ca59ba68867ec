package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether the role is one of the enumerated chat roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one turn in a conversation. Messages are immutable once
// appended, except for the in-progress assistant message which is mutated in
// place while a response streams in.
type ChatMessage struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	OriginModel string `json:"originModel,omitempty"`
}

// Conversation is an ordered sequence of messages tied to an opaque session id.
type Conversation struct {
	SessionId string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
}

func NewConversation() *Conversation {
	return &Conversation{SessionId: uuid.NewString()}
}

func (c *Conversation) Append(msg ChatMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	c.Messages = append(c.Messages, msg)
}

// Last returns a pointer to the most recent message, or nil for an empty
// conversation. The pointer is live: streaming accumulation mutates through it.
func (c *Conversation) Last() *ChatMessage {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Clear drops all messages and rotates the session id.
func (c *Conversation) Clear() {
	c.Messages = nil
	c.SessionId = uuid.NewString()
}
