package agent

import (
	"context"

	"conductor/domain"
	"conductor/llm"
)

const codeSystemPrompt = `You write code or scripts to accomplish the user's request. Output the complete code with a short explanation of what it does and any side effects it would have when run.`

// CodeExecutor drafts code or scripts. Proposed code always reports high
// risk: running it has side effects the conversation cannot see, so it must
// clear the approval gate before it reaches the user as a turn result.
type CodeExecutor struct {
	completer llm.CompletionClient
}

func NewCodeExecutor(completer llm.CompletionClient) *CodeExecutor {
	return &CodeExecutor{completer: completer}
}

func (e *CodeExecutor) Tag() domain.Intent {
	return domain.IntentCode
}

func (e *CodeExecutor) Run(ctx context.Context, req Request) (Result, error) {
	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System:  codeSystemPrompt,
		History: historyFromSnapshot(req.Snapshot, 6),
		Prompt:  req.Text,
	})
	if err != nil {
		return Result{}, FromError("code generation failed", err)
	}

	return Result{
		Content:  resp.Content,
		Risk:     RiskHigh,
		RiskNote: "proposed code would have side effects outside the conversation",
		Model:    resp.Model,
	}, nil
}
