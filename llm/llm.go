package llm

import (
	"context"
	"errors"
	"fmt"
)

// ChatMessage is one prior turn handed to the completion provider as context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	// System sets provider-side behavior for this completion.
	System string
	// History is the bounded recent-context window, oldest first.
	History []ChatMessage
	// Prompt is the current user request.
	Prompt string
	// Temperature overrides the client default when > 0.
	Temperature float32
}

type CompletionResponse struct {
	Content string
	Model   string
}

// CompletionClient is the opaque text-completion capability consumed by
// executors. Implementations classify provider failures so the engine's
// retry policy can distinguish transient from permanent ones.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Error wraps a provider failure with a retryability classification.
type Error struct {
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion provider error: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable provider failure. Timeouts
// and unclassified errors count as transient; only an explicit permanent
// classification does not.
func IsTransient(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Transient
	}
	return true
}
