package engine

import "errors"

var (
	// ErrSessionBusy means the session already has a turn in flight or a
	// pending approval ticket. The caller should retry after it settles.
	ErrSessionBusy = errors.New("session has a turn in progress")

	// ErrStoreUnavailable wraps context-store failures. Turns fail rather
	// than proceed on partial context.
	ErrStoreUnavailable = errors.New("context store unavailable")

	// ErrInvalidDecision means a resume carried a decision other than
	// approved or rejected.
	ErrInvalidDecision = errors.New("invalid approval decision")
)
