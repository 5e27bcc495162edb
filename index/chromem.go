package index

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex implements Index on chromem-go, an embedded pure-Go vector
// database. Workspace isolation is enforced structurally: every workspace
// gets its own collection and queries never cross collections.
type ChromemIndex struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

// NewChromemIndex opens a persistent index at path, or an in-memory one when
// path is empty.
func NewChromemIndex(path string, embed chromem.EmbeddingFunc) (*ChromemIndex, error) {
	if path == "" {
		return &ChromemIndex{db: chromem.NewDB(), embed: embed}, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem index: %w", err)
	}

	return &ChromemIndex{db: db, embed: embed}, nil
}

func (x *ChromemIndex) Upsert(ctx context.Context, workspaceId, documentId string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	collection, err := x.db.GetOrCreateCollection(workspaceId, nil, x.embed)
	if err != nil {
		return fmt.Errorf("failed to get/create collection for workspace %s: %w", workspaceId, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:       fmt.Sprintf("%s_%d", documentId, i),
			Content:  chunk,
			Metadata: map[string]string{"document_id": documentId},
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents to index: %w", err)
	}

	return nil
}

func (x *ChromemIndex) Query(ctx context.Context, workspaceId, text string, k int) ([]Chunk, error) {
	collection := x.db.GetCollection(workspaceId, x.embed)
	if collection == nil {
		// nothing indexed for this workspace yet
		return nil, nil
	}

	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query index for workspace %s: %w", workspaceId, err)
	}

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = Chunk{
			Id:         r.ID,
			DocumentId: r.Metadata["document_id"],
			Content:    r.Content,
			Score:      r.Similarity,
		}
	}

	return chunks, nil
}
