package engine

import (
	"fmt"

	"conductor/agent"
	"conductor/domain"
)

// ProposedAction is what the approval gate sees: the request, the resolved
// intent and the executor's proposed result with its risk assessment.
type ProposedAction struct {
	Intent      domain.Intent
	RequestText string
	Content     string
	Risk        agent.RiskLevel
	RiskNote    string
}

type GateDecision struct {
	RequireApproval bool
	RiskNote        string
}

// ApprovalGate decides whether a proposed action needs explicit user
// confirmation before its content is persisted as the turn result.
type ApprovalGate interface {
	Evaluate(action ProposedAction) GateDecision
}

// ThresholdGate requires approval for any action at or above a configured
// risk level.
type ThresholdGate struct {
	Threshold agent.RiskLevel
}

func (g ThresholdGate) Evaluate(action ProposedAction) GateDecision {
	if !action.Risk.AtLeast(g.Threshold) {
		return GateDecision{}
	}
	note := action.RiskNote
	if note == "" {
		note = fmt.Sprintf("%s executor reported %s risk", action.Intent, action.Risk)
	}
	return GateDecision{RequireApproval: true, RiskNote: note}
}
