package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/common"
	"conductor/domain"
)

func TestPersistAndGetSession(t *testing.T) {
	storage := NewTestStorage(t, "session-test")
	ctx := context.Background()

	workspace := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, workspace))

	session := newTestSession(workspace.Id)
	require.NoError(t, storage.PersistSession(ctx, session))

	got, err := storage.GetSession(ctx, workspace.Id, session.Id)
	require.NoError(t, err)
	assert.Equal(t, session.Name, got.Name)

	t.Run("session is scoped to its workspace", func(t *testing.T) {
		_, err := storage.GetSession(ctx, "ws_other", session.Id)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestPersistSessionNeverChangesWorkspace(t *testing.T) {
	storage := NewTestStorage(t, "session-ownership-test")
	ctx := context.Background()

	owner := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, owner))
	other := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, other))

	session := newTestSession(owner.Id)
	require.NoError(t, storage.PersistSession(ctx, session))
	require.NoError(t, storage.AppendMessage(ctx, newTestMessage(session.Id, domain.MessageRoleUser, "private note")))

	// re-persisting the same id under a different workspace must not
	// reassign ownership, and the upsert must not delete-and-reinsert the
	// row (which would cascade to the session's messages)
	hijacked := session
	hijacked.WorkspaceId = other.Id
	hijacked.Name = "renamed"
	require.NoError(t, storage.PersistSession(ctx, hijacked))

	got, err := storage.GetSession(ctx, owner.Id, session.Id)
	require.NoError(t, err)
	assert.Equal(t, owner.Id, got.WorkspaceId)
	assert.Equal(t, "renamed", got.Name)

	_, err = storage.GetSession(ctx, other.Id, session.Id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	messages, err := storage.GetMessages(ctx, session.Id, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "private note", messages[0].Content)
}

func TestGetSessionById(t *testing.T) {
	storage := NewTestStorage(t, "session-by-id-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	got, err := storage.GetSessionById(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, session.WorkspaceId, got.WorkspaceId)

	_, err = storage.GetSessionById(ctx, "sess_missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetSessionsOrderedByActivity(t *testing.T) {
	storage := NewTestStorage(t, "session-order-test")
	ctx := context.Background()

	workspace := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, workspace))

	older := newTestSession(workspace.Id)
	older.Updated = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, storage.PersistSession(ctx, older))

	newer := newTestSession(workspace.Id)
	require.NoError(t, storage.PersistSession(ctx, newer))

	sessions, err := storage.GetSessions(ctx, workspace.Id)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.Id, sessions[0].Id)
	assert.Equal(t, older.Id, sessions[1].Id)
}

func TestDeleteSessionRemovesMessagesAndTickets(t *testing.T) {
	storage := NewTestStorage(t, "session-delete-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	require.NoError(t, storage.AppendMessage(ctx, newTestMessage(session.Id, domain.MessageRoleUser, "hi")))
	ticket := newTestTicket(session.WorkspaceId, session.Id)
	require.NoError(t, storage.CreateTicket(ctx, ticket, newTestMessage(session.Id, domain.MessageRoleUser, ticket.RequestText)))

	require.NoError(t, storage.DeleteSession(ctx, session.WorkspaceId, session.Id))

	_, err := storage.GetSession(ctx, session.WorkspaceId, session.Id)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = storage.GetTicket(ctx, ticket.Id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	messages, err := storage.GetMessages(ctx, session.Id, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDocumentLifecycle(t *testing.T) {
	storage := NewTestStorage(t, "document-test")
	ctx := context.Background()

	workspace := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, workspace))

	document := domain.Document{
		Id:          "doc_" + ksuid.New().String(),
		WorkspaceId: workspace.Id,
		SourceName:  "handbook.md",
		IndexRef:    workspace.Id,
		Ingested:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, storage.PersistDocument(ctx, document))

	got, err := storage.GetDocument(ctx, workspace.Id, document.Id)
	require.NoError(t, err)
	assert.Equal(t, "handbook.md", got.SourceName)

	documents, err := storage.ListWorkspaceDocuments(ctx, workspace.Id)
	require.NoError(t, err)
	assert.Len(t, documents, 1)

	require.NoError(t, storage.DeleteDocument(ctx, workspace.Id, document.Id))
	_, err = storage.GetDocument(ctx, workspace.Id, document.Id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
