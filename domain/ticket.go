package domain

import (
	"context"
	"time"
)

type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusApproved TicketStatus = "approved"
	TicketStatusRejected TicketStatus = "rejected"
	TicketStatusExpired  TicketStatus = "expired"
)

// ApprovalTicket suspends a turn pending explicit user confirmation. It
// carries everything needed to resume after a process restart: the original
// request, the resolved intent and the executor's already-computed proposed
// content, so approval never re-runs the executor.
type ApprovalTicket struct {
	Id              string       `json:"id"`
	WorkspaceId     string       `json:"workspaceId"`
	SessionId       string       `json:"sessionId"`
	RequestText     string       `json:"requestText"`
	Intent          Intent       `json:"intent"`
	Executor        string       `json:"executor"`
	ProposedContent string       `json:"proposedContent"`
	RiskNote        string       `json:"riskNote"`
	Status          TicketStatus `json:"status"`
	ResultMessageId string       `json:"resultMessageId,omitempty"`
	Created         time.Time    `json:"created"`
	Resolved        *time.Time   `json:"resolved,omitempty"`
}

// ApprovalTicketStorage defines the interface for approval-ticket database
// operations. CreateTicket persists the ticket together with the suspended
// turn's user message in one transaction. ResolveTicket transitions a pending
// ticket to a terminal status and persists the resulting message atomically;
// resolving a non-pending ticket returns common.ErrAlreadyResolved so callers
// can report the prior outcome instead of duplicating it.
type ApprovalTicketStorage interface {
	CreateTicket(ctx context.Context, ticket ApprovalTicket, userMessage Message) error
	GetTicket(ctx context.Context, ticketId string) (ApprovalTicket, error)
	GetPendingTicketForSession(ctx context.Context, sessionId string) (ApprovalTicket, error)
	ResolveTicket(ctx context.Context, ticketId string, status TicketStatus, result Message) (ApprovalTicket, error)
}
