package domain

import (
	"context"
	"time"
)

// Document is the metadata record for an ingested artifact. The core does not
// own knowledge-index content, only the IndexRef pointer to it.
type Document struct {
	Id          string    `json:"id"`
	WorkspaceId string    `json:"workspaceId"`
	SourceName  string    `json:"sourceName"`
	IndexRef    string    `json:"indexRef"`
	Ingested    time.Time `json:"ingested"`
}

// DocumentStorage defines the interface for document-metadata database operations
type DocumentStorage interface {
	PersistDocument(ctx context.Context, document Document) error
	GetDocument(ctx context.Context, workspaceId, documentId string) (Document, error)
	ListWorkspaceDocuments(ctx context.Context, workspaceId string) ([]Document, error)
	DeleteDocument(ctx context.Context, workspaceId, documentId string) error
}
