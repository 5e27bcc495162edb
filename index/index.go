package index

import "context"

// Chunk is one scored piece of indexed document content.
type Chunk struct {
	Id         string  `json:"id"`
	DocumentId string  `json:"documentId"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// Index is the narrow knowledge-index capability consumed by the document-QA
// executor. Entries are only queryable within their owning workspace. The
// core never assumes index durability or co-location with the engine.
type Index interface {
	Upsert(ctx context.Context, workspaceId, documentId string, chunks []string) error
	Query(ctx context.Context, workspaceId, text string, k int) ([]Chunk, error)
}
