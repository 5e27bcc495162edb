package llm

import (
	"context"
	"sync"
)

// StaticCompleter returns canned responses. It backs tests and offline runs
// where no completion provider is configured.
type StaticCompleter struct {
	Response string
	Err      error

	mu    sync.Mutex
	calls int
}

func (s *StaticCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	if s.Err != nil {
		return CompletionResponse{}, s.Err
	}
	return CompletionResponse{Content: s.Response, Model: "static"}, nil
}

func (s *StaticCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
