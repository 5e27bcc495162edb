package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"conductor/domain"
	"conductor/srv"
)

type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

var _ srv.Storage = (*Storage)(nil)

func (s *Storage) CheckConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite connection check failed: %w", err)
	}
	return nil
}

// LoadContext composes the per-turn snapshot: session record, the most recent
// `window` messages in ascending seq order, and workspace document metadata.
func (s *Storage) LoadContext(ctx context.Context, workspaceId, sessionId string, window int) (domain.ContextSnapshot, error) {
	session, err := s.GetSession(ctx, workspaceId, sessionId)
	if err != nil {
		return domain.ContextSnapshot{}, err
	}

	messages, err := s.GetMessages(ctx, sessionId, window)
	if err != nil {
		return domain.ContextSnapshot{}, err
	}

	documents, err := s.ListWorkspaceDocuments(ctx, workspaceId)
	if err != nil {
		return domain.ContextSnapshot{}, err
	}

	return domain.ContextSnapshot{
		Session:        session,
		RecentMessages: messages,
		Documents:      documents,
	}, nil
}
