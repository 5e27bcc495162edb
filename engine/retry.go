package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"conductor/agent"
)

type RetryDecision int

const (
	// RetrySame re-invokes the same executor after a backoff wait.
	RetrySame RetryDecision = iota
	// FallbackExecutor hands the request to the chat executor for a
	// degraded but useful response.
	FallbackExecutor
	// GiveUp terminates the turn without retrying or rerouting.
	GiveUp
)

func (d RetryDecision) String() string {
	switch d {
	case RetrySame:
		return "retry_same"
	case FallbackExecutor:
		return "fallback"
	case GiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// RetryPolicy decides what happens after a failed executor attempt.
// Transient failures retry the same executor up to MaxAttempts total, then
// fall back. Permanent failures fall back immediately: retrying a malformed
// request wastes the attempt budget. Risk rejections are terminal; a refused
// action must never be silently replaced with a different one.
type RetryPolicy struct {
	MaxAttempts int
}

func (p RetryPolicy) Decide(attempt int, kind agent.FailureKind) RetryDecision {
	switch kind {
	case agent.FailurePermanent:
		return FallbackExecutor
	case agent.FailureRiskRejected:
		return GiveUp
	}
	if attempt >= p.MaxAttempts {
		return FallbackExecutor
	}
	return RetrySame
}

// NewBackOff returns the wait schedule between retry attempts.
func (p RetryPolicy) NewBackOff(initialInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxElapsedTime = 0
	return b
}
