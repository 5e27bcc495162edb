package domain

import (
	"context"
	"time"
)

// A workspace is the isolation boundary for sessions, documents and knowledge
// index content belonging to one tenant/user context. Knowledge-index entries
// for a document are only queryable within its owning workspace.
type Workspace struct {
	Id      string    `json:"id"`
	Name    string    `json:"name"`
	Owner   string    `json:"owner"`
	Created time.Time `json:"created"`
}

// WorkspaceStorage defines the interface for workspace-related database
// operations. DeleteWorkspace cascades to the workspace's sessions, messages,
// documents and approval tickets.
type WorkspaceStorage interface {
	PersistWorkspace(ctx context.Context, workspace Workspace) error
	GetWorkspace(ctx context.Context, workspaceId string) (Workspace, error)
	GetAllWorkspaces(ctx context.Context) ([]Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceId string) error
}
