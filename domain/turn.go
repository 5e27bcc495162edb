package domain

type TurnStatus string

const (
	// TurnDone means a message was persisted, including fallback and
	// rejection outcomes.
	TurnDone TurnStatus = "done"
	// TurnPending means the turn is suspended on an approval ticket.
	TurnPending TurnStatus = "pending"
	// TurnFailed means the turn terminated with a reported error and no
	// assistant message.
	TurnFailed TurnStatus = "failed"
)

// TurnResult is the outcome of one pass through the orchestration state
// machine, returned by both Process and Resume.
type TurnResult struct {
	Status   TurnStatus `json:"status"`
	Message  *Message   `json:"message,omitempty"`
	TicketId string     `json:"ticketId,omitempty"`
	Error    string     `json:"error,omitempty"`
}
