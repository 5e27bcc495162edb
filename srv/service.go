package srv

import (
	"context"

	"conductor/domain"
)

// Storage is the durable context store contract. Any keyed store with atomic
// per-call writes can back it; the sqlite package provides the default
// implementation.
type Storage interface {
	domain.WorkspaceStorage
	domain.SessionStorage
	domain.MessageStorage
	domain.DocumentStorage
	domain.ApprovalTicketStorage

	// LoadContext returns the bounded per-turn snapshot for a session: its
	// most recent `window` messages in submission order plus the workspace's
	// document metadata.
	LoadContext(ctx context.Context, workspaceId, sessionId string, window int) (domain.ContextSnapshot, error)

	CheckConnection(ctx context.Context) error
}
