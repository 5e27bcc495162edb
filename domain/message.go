package domain

import (
	"context"
	"time"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageMeta records how a turn was produced. All fields are optional.
type MessageMeta struct {
	Intent   Intent   `json:"intent,omitempty"`
	Executor string   `json:"executor,omitempty"`
	Approval string   `json:"approval,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Message is one turn entry. Messages are immutable once persisted; a
// corrected turn appends a new message rather than mutating history. Seq is
// assigned by storage inside the append transaction and is strictly
// increasing per session, making submission order a storage invariant.
type Message struct {
	Id        string      `json:"id"`
	SessionId string      `json:"sessionId"`
	Seq       int64       `json:"seq"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Meta      MessageMeta `json:"meta,omitempty"`
	Created   time.Time   `json:"created"`
}

// MessageStorage defines the interface for message-related database
// operations. All writes are atomic per call; AppendTurn commits every
// message of a turn (plus the session's Updated bump) in a single
// transaction. Appends are idempotent on message id.
type MessageStorage interface {
	AppendMessage(ctx context.Context, message Message) error
	AppendTurn(ctx context.Context, sessionId string, messages []Message) error
	GetMessage(ctx context.Context, sessionId, messageId string) (Message, error)
	GetMessages(ctx context.Context, sessionId string, limit int) ([]Message, error)
}
