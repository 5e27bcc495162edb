package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"conductor/common"
	"conductor/domain"
)

// CreateTicket persists an ApprovalTicket together with the suspended turn's
// user message in a single transaction, so a pause either fully happened or
// not at all.
func (s *Storage) CreateTicket(ctx context.Context, ticket domain.ApprovalTicket, userMessage domain.Message) error {
	ctx, span := messageTracer.Start(ctx, "Storage.CreateTicket")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("session_id", ticket.SessionId),
		attribute.String("ticket_id", ticket.Id),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendMessagesTx(ctx, tx, ticket.SessionId, []domain.Message{userMessage}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ticket.Created = ticket.Created.UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_tickets (
			id, workspace_id, session_id, request_text, intent, executor,
			proposed_content, risk_note, status, result_message_id, created, resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`,
		ticket.Id, ticket.WorkspaceId, ticket.SessionId, ticket.RequestText,
		ticket.Intent, ticket.Executor, ticket.ProposedContent, ticket.RiskNote,
		ticket.Status, ticket.ResultMessageId, ticket.Created,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist approval ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTicket retrieves a single ApprovalTicket from the SQLite database
func (s *Storage) GetTicket(ctx context.Context, ticketId string) (domain.ApprovalTicket, error) {
	query := `SELECT id, workspace_id, session_id, request_text, intent, executor,
					 proposed_content, risk_note, status, result_message_id, created, resolved
			  FROM approval_tickets WHERE id = ?`

	return s.scanTicket(s.db.QueryRowContext(ctx, query, ticketId))
}

// GetPendingTicketForSession returns the session's pending ticket, or
// common.ErrNotFound if the session has none. At most one ticket per session
// is pending at a time; turns are serialized per session.
func (s *Storage) GetPendingTicketForSession(ctx context.Context, sessionId string) (domain.ApprovalTicket, error) {
	query := `SELECT id, workspace_id, session_id, request_text, intent, executor,
					 proposed_content, risk_note, status, result_message_id, created, resolved
			  FROM approval_tickets WHERE session_id = ? AND status = ?
			  ORDER BY created DESC LIMIT 1`

	return s.scanTicket(s.db.QueryRowContext(ctx, query, sessionId, domain.TicketStatusPending))
}

// ResolveTicket transitions a pending ticket to a terminal status and appends
// the resulting message in the same transaction. If the ticket already left
// the pending state, nothing is written and common.ErrAlreadyResolved is
// returned, which makes duplicate resume calls idempotent.
func (s *Storage) ResolveTicket(ctx context.Context, ticketId string, status domain.TicketStatus, result domain.Message) (domain.ApprovalTicket, error) {
	ctx, span := messageTracer.Start(ctx, "Storage.ResolveTicket")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("ticket_id", ticketId),
		attribute.String("status", string(status)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ApprovalTicket{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE approval_tickets
		SET status = ?, result_message_id = ?, resolved = ?
		WHERE id = ? AND status = ?
	`, status, result.Id, now, ticketId, domain.TicketStatusPending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ApprovalTicket{}, fmt.Errorf("failed to resolve approval ticket: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return domain.ApprovalTicket{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the ticket does not exist or it is no longer pending.
		// Release the transaction before re-reading.
		tx.Rollback()
		ticket, getErr := s.GetTicket(ctx, ticketId)
		if getErr != nil {
			return domain.ApprovalTicket{}, getErr
		}
		return ticket, common.ErrAlreadyResolved
	}

	if err := appendMessagesTx(ctx, tx, result.SessionId, []domain.Message{result}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ApprovalTicket{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.ApprovalTicket{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetTicket(ctx, ticketId)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Storage) scanTicket(row rowScanner) (domain.ApprovalTicket, error) {
	var ticket domain.ApprovalTicket
	var resolved sql.NullTime

	err := row.Scan(
		&ticket.Id, &ticket.WorkspaceId, &ticket.SessionId, &ticket.RequestText,
		&ticket.Intent, &ticket.Executor, &ticket.ProposedContent, &ticket.RiskNote,
		&ticket.Status, &ticket.ResultMessageId, &ticket.Created, &resolved,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ApprovalTicket{}, common.ErrNotFound
		}
		return domain.ApprovalTicket{}, fmt.Errorf("failed to get approval ticket: %w", err)
	}

	if resolved.Valid {
		t := resolved.Time
		ticket.Resolved = &t
	}

	return ticket, nil
}
