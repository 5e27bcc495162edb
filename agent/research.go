package agent

import (
	"context"

	"conductor/domain"
	"conductor/llm"
)

const researchSystemPrompt = `You answer research questions about current events, prices, weather and other time-sensitive topics. State clearly when your information may be out of date and what the user should verify against a live source.`

// ResearchExecutor handles requests about time-sensitive, external-world
// facts. Without a live retrieval backend it answers from the model while
// flagging staleness explicitly.
type ResearchExecutor struct {
	completer llm.CompletionClient
}

func NewResearchExecutor(completer llm.CompletionClient) *ResearchExecutor {
	return &ResearchExecutor{completer: completer}
}

func (e *ResearchExecutor) Tag() domain.Intent {
	return domain.IntentResearch
}

func (e *ResearchExecutor) Run(ctx context.Context, req Request) (Result, error) {
	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System:  researchSystemPrompt,
		History: historyFromSnapshot(req.Snapshot, 6),
		Prompt:  req.Text,
	})
	if err != nil {
		return Result{}, FromError("research completion failed", err)
	}

	return Result{Content: resp.Content, Risk: RiskLow, Model: resp.Model}, nil
}
