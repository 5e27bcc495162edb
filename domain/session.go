package domain

import (
	"context"
	"time"
)

// A session is one conversation thread within a workspace, owning an ordered
// sequence of messages.
type Session struct {
	Id          string    `json:"id"`
	WorkspaceId string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// ContextSnapshot is the bounded per-turn view of a session: the most recent
// messages (ascending by submission order) plus the owning workspace's
// document metadata. Never the full unbounded history.
type ContextSnapshot struct {
	Session        Session    `json:"session"`
	RecentMessages []Message  `json:"recentMessages"`
	Documents      []Document `json:"documents"`
}

// SessionStorage defines the interface for session-related database
// operations. PersistSession never changes an existing session's WorkspaceId;
// GetSessionById is the unscoped lookup used to check ownership before a
// session is lazily created.
type SessionStorage interface {
	PersistSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, workspaceId, sessionId string) (Session, error)
	GetSessionById(ctx context.Context, sessionId string) (Session, error)
	GetSessions(ctx context.Context, workspaceId string) ([]Session, error)
	DeleteSession(ctx context.Context, workspaceId, sessionId string) error
}
