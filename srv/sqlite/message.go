package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"conductor/common"
	"conductor/domain"
)

var messageTracer = otel.Tracer("conductor/srv/sqlite")

// AppendMessage appends a single Message in its own transaction.
func (s *Storage) AppendMessage(ctx context.Context, message domain.Message) error {
	return s.AppendTurn(ctx, message.SessionId, []domain.Message{message})
}

// AppendTurn appends all messages of one turn atomically. Seq numbers are
// assigned inside the transaction, continuing the session's sequence, and the
// session's Updated timestamp is bumped in the same commit. Message ids
// already present are skipped, making the append idempotent per message.
func (s *Storage) AppendTurn(ctx context.Context, sessionId string, messages []domain.Message) error {
	ctx, span := messageTracer.Start(ctx, "Storage.AppendTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("session_id", sessionId),
		attribute.Int("message_count", len(messages)),
	)

	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendMessagesTx(ctx, tx, sessionId, messages); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// appendMessagesTx inserts messages with consecutive seq numbers and bumps
// the session's updated timestamp, all on the caller's transaction. Shared
// with the approval-ticket paths, which must commit a message and a ticket
// transition together.
func appendMessagesTx(ctx context.Context, tx *sql.Tx, sessionId string, messages []domain.Message) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?", sessionId,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to get current message seq: %w", err)
	}

	for _, message := range messages {
		metaJSON, err := json.Marshal(message.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal message meta: %w", err)
		}

		seq++
		message.Created = message.Created.UTC()

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO messages (id, session_id, seq, role, content, meta, created)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, message.Id, sessionId, seq, message.Role, message.Content, metaJSON, message.Created)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET updated = ? WHERE id = ?", time.Now().UTC(), sessionId,
	)
	if err != nil {
		return fmt.Errorf("failed to bump session updated time: %w", err)
	}

	return nil
}

// GetMessage retrieves a single Message from the SQLite database
func (s *Storage) GetMessage(ctx context.Context, sessionId, messageId string) (domain.Message, error) {
	query := `SELECT id, session_id, seq, role, content, meta, created
			  FROM messages WHERE session_id = ? AND id = ?`

	var message domain.Message
	var metaJSON []byte

	err := s.db.QueryRowContext(ctx, query, sessionId, messageId).Scan(
		&message.Id, &message.SessionId, &message.Seq, &message.Role,
		&message.Content, &metaJSON, &message.Created,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Message{}, common.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	if err := json.Unmarshal(metaJSON, &message.Meta); err != nil {
		return domain.Message{}, fmt.Errorf("failed to unmarshal message meta: %w", err)
	}

	return message, nil
}

// GetMessages retrieves the most recent messages of a session in ascending
// seq order. A limit <= 0 means no bound.
func (s *Storage) GetMessages(ctx context.Context, sessionId string, limit int) ([]domain.Message, error) {
	ctx, span := messageTracer.Start(ctx, "Storage.GetMessages")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("session_id", sessionId),
		attribute.Int("limit", limit),
	)

	query := `SELECT id, session_id, seq, role, content, meta, created
			  FROM (
				  SELECT id, session_id, seq, role, content, meta, created
				  FROM messages WHERE session_id = ?
				  ORDER BY seq DESC LIMIT ?
			  ) ORDER BY seq ASC`

	if limit <= 0 {
		limit = -1 // sqlite treats a negative LIMIT as unbounded
	}

	rows, err := s.db.QueryContext(ctx, query, sessionId, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var message domain.Message
		var metaJSON []byte

		err := rows.Scan(
			&message.Id, &message.SessionId, &message.Seq, &message.Role,
			&message.Content, &metaJSON, &message.Created,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if err := json.Unmarshal(metaJSON, &message.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message meta: %w", err)
		}

		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over message rows: %w", err)
	}

	return messages, nil
}
