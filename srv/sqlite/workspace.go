package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"conductor/common"
	"conductor/domain"
)

// PersistWorkspace inserts or updates a Workspace in the SQLite database.
// The conflict clause updates in place rather than REPLACE, whose implicit
// delete would cascade to the workspace's sessions and documents when foreign
// keys are enforced.
func (s *Storage) PersistWorkspace(ctx context.Context, workspace domain.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, owner, created)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, owner = excluded.owner
	`

	workspace.Created = workspace.Created.UTC()

	_, err := s.db.ExecContext(ctx, query,
		workspace.Id, workspace.Name, workspace.Owner, workspace.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to persist workspace: %w", err)
	}

	return nil
}

// GetWorkspace retrieves a single Workspace from the SQLite database
func (s *Storage) GetWorkspace(ctx context.Context, workspaceId string) (domain.Workspace, error) {
	query := "SELECT id, name, owner, created FROM workspaces WHERE id = ?"

	var workspace domain.Workspace
	err := s.db.QueryRowContext(ctx, query, workspaceId).Scan(
		&workspace.Id, &workspace.Name, &workspace.Owner, &workspace.Created,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Workspace{}, common.ErrNotFound
		}
		return domain.Workspace{}, fmt.Errorf("failed to get workspace: %w", err)
	}

	return workspace, nil
}

// GetAllWorkspaces retrieves all Workspaces ordered by creation time
func (s *Storage) GetAllWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	query := "SELECT id, name, owner, created FROM workspaces ORDER BY created ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []domain.Workspace
	for rows.Next() {
		var workspace domain.Workspace
		err := rows.Scan(&workspace.Id, &workspace.Name, &workspace.Owner, &workspace.Created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace row: %w", err)
		}
		workspaces = append(workspaces, workspace)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over workspace rows: %w", err)
	}

	return workspaces, nil
}

// DeleteWorkspace removes a Workspace and cascades to its sessions, messages,
// documents and approval tickets in a single transaction. The explicit child
// deletes keep the cascade correct even on connections without the
// foreign_keys pragma.
func (s *Storage) DeleteWorkspace(ctx context.Context, workspaceId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	childQueries := []string{
		"DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE workspace_id = ?)",
		"DELETE FROM approval_tickets WHERE workspace_id = ?",
		"DELETE FROM sessions WHERE workspace_id = ?",
		"DELETE FROM documents WHERE workspace_id = ?",
	}
	for _, query := range childQueries {
		if _, err := tx.ExecContext(ctx, query, workspaceId); err != nil {
			return fmt.Errorf("failed to cascade workspace delete: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", workspaceId)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
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
