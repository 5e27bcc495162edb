package agent

import (
	"context"
	"errors"
	"fmt"

	"conductor/domain"
	"conductor/llm"
)

// RiskLevel is the executor's self-reported risk for a proposed result.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskRank = map[RiskLevel]int{
	RiskLow:    0,
	RiskMedium: 1,
	RiskHigh:   2,
}

// AtLeast reports whether r is at or above other in the risk ordering.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

func StringToRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(s)
	if _, ok := riskRank[level]; !ok {
		return "", fmt.Errorf("invalid risk level: %q", s)
	}
	return level, nil
}

// Request is everything an executor gets for one turn: the request text plus
// the session's context snapshot. Executors never touch storage directly.
type Request struct {
	WorkspaceId string
	SessionId   string
	Text        string
	Snapshot    domain.ContextSnapshot
}

// Result is a proposed response. Risk and RiskNote feed the approval gate;
// the content is not shown to anyone until the gate passes it.
type Result struct {
	Content  string
	Risk     RiskLevel
	RiskNote string
	Model    string
}

type FailureKind string

const (
	FailureTransient    FailureKind = "transient"
	FailurePermanent    FailureKind = "permanent"
	FailureRiskRejected FailureKind = "risk_rejected"
)

// Failure is an executor error carrying its retryability classification.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Detail, f.Err)
	}
	return f.Detail
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func Transient(detail string, err error) *Failure {
	return &Failure{Kind: FailureTransient, Detail: detail, Err: err}
}

func Permanent(detail string, err error) *Failure {
	return &Failure{Kind: FailurePermanent, Detail: detail, Err: err}
}

// FromError wraps a collaborator error as a Failure, deriving the kind from
// the provider classification when one is present.
func FromError(detail string, err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	if llm.IsTransient(err) {
		return Transient(detail, err)
	}
	return Permanent(detail, err)
}

// ClassifyError returns the failure kind for any executor error. Unclassified
// errors count as transient so that unknown conditions get retried rather
// than silently rerouted.
func ClassifyError(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var provErr *llm.Error
	if errors.As(err, &provErr) && !provErr.Transient {
		return FailurePermanent
	}
	return FailureTransient
}

// Executor handles requests for exactly one intent tag.
type Executor interface {
	Tag() domain.Intent
	Run(ctx context.Context, req Request) (Result, error)
}

// Registry maps intent tags to executors. Registration happens at startup;
// lookups after that are read-only.
type Registry struct {
	executors map[domain.Intent]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.Intent]Executor)}
}

func (r *Registry) Register(executor Executor) {
	r.executors[executor.Tag()] = executor
}

func (r *Registry) Get(tag domain.Intent) (Executor, bool) {
	executor, ok := r.executors[tag]
	return executor, ok
}

// Validate checks that every routable intent has an executor. A gap here is
// a deployment error and should fail startup, not a live turn.
func (r *Registry) Validate() error {
	for _, intent := range domain.RoutableIntents {
		if _, ok := r.executors[intent]; !ok {
			return fmt.Errorf("no executor registered for intent %q", intent)
		}
	}
	return nil
}

// historyFromSnapshot converts the most recent n snapshot messages into
// provider chat turns, oldest first.
func historyFromSnapshot(snapshot domain.ContextSnapshot, n int) []llm.ChatMessage {
	messages := snapshot.RecentMessages
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	history := make([]llm.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != domain.MessageRoleUser && m.Role != domain.MessageRoleAssistant {
			continue
		}
		history = append(history, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return history
}
