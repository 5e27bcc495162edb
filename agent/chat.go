package agent

import (
	"context"

	"conductor/domain"
	"conductor/llm"
)

const chatSystemPrompt = `You are a helpful assistant. Answer conversationally and concisely, using the prior messages for context.`

// ChatExecutor handles open-ended conversation. It is also the engine's
// fallback when a specialized executor exhausts its retries.
type ChatExecutor struct {
	completer llm.CompletionClient
}

func NewChatExecutor(completer llm.CompletionClient) *ChatExecutor {
	return &ChatExecutor{completer: completer}
}

func (e *ChatExecutor) Tag() domain.Intent {
	return domain.IntentChat
}

func (e *ChatExecutor) Run(ctx context.Context, req Request) (Result, error) {
	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System:  chatSystemPrompt,
		History: historyFromSnapshot(req.Snapshot, 10),
		Prompt:  req.Text,
	})
	if err != nil {
		return Result{}, FromError("chat completion failed", err)
	}

	return Result{Content: resp.Content, Risk: RiskLow, Model: resp.Model}, nil
}
