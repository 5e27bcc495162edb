package agent

import (
	"context"
	"fmt"
	"strings"

	"conductor/domain"
	"conductor/index"
	"conductor/llm"
)

const docQASystemPrompt = `You answer questions strictly from the provided document excerpts. If the excerpts do not contain the answer, say so plainly instead of guessing. Cite the source name when you use an excerpt.`

// DocQAExecutor answers questions over the workspace's ingested documents by
// retrieving relevant chunks from the knowledge index and synthesizing an
// answer grounded in them.
type DocQAExecutor struct {
	completer llm.CompletionClient
	idx       index.Index
	topK      int
}

func NewDocQAExecutor(completer llm.CompletionClient, idx index.Index, topK int) *DocQAExecutor {
	if topK <= 0 {
		topK = 5
	}
	return &DocQAExecutor{completer: completer, idx: idx, topK: topK}
}

func (e *DocQAExecutor) Tag() domain.Intent {
	return domain.IntentDocumentQA
}

func (e *DocQAExecutor) Run(ctx context.Context, req Request) (Result, error) {
	chunks, err := e.idx.Query(ctx, req.WorkspaceId, req.Text, e.topK)
	if err != nil {
		return Result{}, Transient("knowledge index query failed", err)
	}

	if len(chunks) == 0 {
		return Result{
			Content: "I don't have any ingested documents to answer that from. Upload a document to this workspace first.",
			Risk:    RiskLow,
		}, nil
	}

	sources := sourceNamesById(req.Snapshot.Documents)

	var excerpts strings.Builder
	for i, chunk := range chunks {
		name := sources[chunk.DocumentId]
		if name == "" {
			name = chunk.DocumentId
		}
		fmt.Fprintf(&excerpts, "[%d] (%s)\n%s\n\n", i+1, name, chunk.Content)
	}

	prompt := fmt.Sprintf("Document excerpts:\n\n%sQuestion: %s", excerpts.String(), req.Text)

	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System: docQASystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return Result{}, FromError("document answer synthesis failed", err)
	}

	return Result{Content: resp.Content, Risk: RiskLow, Model: resp.Model}, nil
}

func sourceNamesById(documents []domain.Document) map[string]string {
	names := make(map[string]string, len(documents))
	for _, doc := range documents {
		names[doc.Id] = doc.SourceName
	}
	return names
}
