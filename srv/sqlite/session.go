package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"conductor/common"
	"conductor/domain"
)

// PersistSession inserts or updates a Session in the SQLite database. On
// conflict only name and updated change: a session's workspace_id and created
// time are immutable, so a session can never migrate between workspaces (and
// the upsert never triggers the REPLACE delete, which would cascade to the
// session's messages and tickets).
func (s *Storage) PersistSession(ctx context.Context, session domain.Session) error {
	query := `
		INSERT INTO sessions (id, workspace_id, name, created, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated = excluded.updated
	`

	session.Created = session.Created.UTC()
	session.Updated = session.Updated.UTC()

	_, err := s.db.ExecContext(ctx, query,
		session.Id, session.WorkspaceId, session.Name, session.Created, session.Updated,
	)
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	return nil
}

// GetSession retrieves a single Session from the SQLite database
func (s *Storage) GetSession(ctx context.Context, workspaceId, sessionId string) (domain.Session, error) {
	query := `SELECT id, workspace_id, name, created, updated
			  FROM sessions WHERE workspace_id = ? AND id = ?`

	var session domain.Session
	err := s.db.QueryRowContext(ctx, query, workspaceId, sessionId).Scan(
		&session.Id, &session.WorkspaceId, &session.Name, &session.Created, &session.Updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Session{}, common.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// GetSessionById retrieves a Session by id alone, regardless of owning
// workspace. Callers use it to check ownership before lazily creating a
// session; workspace-scoped reads go through GetSession.
func (s *Storage) GetSessionById(ctx context.Context, sessionId string) (domain.Session, error) {
	query := `SELECT id, workspace_id, name, created, updated
			  FROM sessions WHERE id = ?`

	var session domain.Session
	err := s.db.QueryRowContext(ctx, query, sessionId).Scan(
		&session.Id, &session.WorkspaceId, &session.Name, &session.Created, &session.Updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Session{}, common.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// GetSessions retrieves a workspace's Sessions ordered by last update
func (s *Storage) GetSessions(ctx context.Context, workspaceId string) ([]domain.Session, error) {
	query := `SELECT id, workspace_id, name, created, updated
			  FROM sessions WHERE workspace_id = ? ORDER BY updated DESC`

	rows, err := s.db.QueryContext(ctx, query, workspaceId)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		err := rows.Scan(&session.Id, &session.WorkspaceId, &session.Name, &session.Created, &session.Updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over session rows: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a Session and its messages and tickets in a single
// transaction
func (s *Storage) DeleteSession(ctx context.Context, workspaceId, sessionId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionId); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM approval_tickets WHERE session_id = ?", sessionId); err != nil {
		return fmt.Errorf("failed to delete session tickets: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE workspace_id = ? AND id = ?", workspaceId, sessionId)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
