package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"conductor/common"
	"conductor/domain"
)

// PersistDocument inserts or updates a Document metadata record
func (s *Storage) PersistDocument(ctx context.Context, document domain.Document) error {
	query := `
		INSERT OR REPLACE INTO documents (id, workspace_id, source_name, index_ref, ingested)
		VALUES (?, ?, ?, ?, ?)
	`

	document.Ingested = document.Ingested.UTC()

	_, err := s.db.ExecContext(ctx, query,
		document.Id, document.WorkspaceId, document.SourceName, document.IndexRef, document.Ingested,
	)
	if err != nil {
		return fmt.Errorf("failed to persist document: %w", err)
	}

	return nil
}

// GetDocument retrieves a single Document from the SQLite database
func (s *Storage) GetDocument(ctx context.Context, workspaceId, documentId string) (domain.Document, error) {
	query := `SELECT id, workspace_id, source_name, index_ref, ingested
			  FROM documents WHERE workspace_id = ? AND id = ?`

	var document domain.Document
	err := s.db.QueryRowContext(ctx, query, workspaceId, documentId).Scan(
		&document.Id, &document.WorkspaceId, &document.SourceName, &document.IndexRef, &document.Ingested,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Document{}, common.ErrNotFound
		}
		return domain.Document{}, fmt.Errorf("failed to get document: %w", err)
	}

	return document, nil
}

// ListWorkspaceDocuments retrieves a workspace's Documents in ingestion order
func (s *Storage) ListWorkspaceDocuments(ctx context.Context, workspaceId string) ([]domain.Document, error) {
	query := `SELECT id, workspace_id, source_name, index_ref, ingested
			  FROM documents WHERE workspace_id = ? ORDER BY ingested ASC`

	rows, err := s.db.QueryContext(ctx, query, workspaceId)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var documents []domain.Document
	for rows.Next() {
		var document domain.Document
		err := rows.Scan(&document.Id, &document.WorkspaceId, &document.SourceName, &document.IndexRef, &document.Ingested)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		documents = append(documents, document)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over document rows: %w", err)
	}

	return documents, nil
}

// DeleteDocument removes a Document metadata record
func (s *Storage) DeleteDocument(ctx context.Context, workspaceId, documentId string) error {
	query := "DELETE FROM documents WHERE workspace_id = ? AND id = ?"
	result, err := s.db.ExecContext(ctx, query, workspaceId, documentId)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	return nil
}
