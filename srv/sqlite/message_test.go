package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/common"
	"conductor/domain"
)

func setupSession(t *testing.T, storage *Storage) domain.Session {
	t.Helper()
	ctx := context.Background()

	workspace := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, workspace))
	session := newTestSession(workspace.Id)
	require.NoError(t, storage.PersistSession(ctx, session))
	return session
}

func TestAppendTurnAssignsSequentialSeq(t *testing.T) {
	storage := NewTestStorage(t, "message-seq-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	first := newTestMessage(session.Id, domain.MessageRoleUser, "what's 2+2?")
	second := newTestMessage(session.Id, domain.MessageRoleAssistant, "4")
	require.NoError(t, storage.AppendTurn(ctx, session.Id, []domain.Message{first, second}))

	third := newTestMessage(session.Id, domain.MessageRoleUser, "and 3+3?")
	require.NoError(t, storage.AppendMessage(ctx, third))

	messages, err := storage.GetMessages(ctx, session.Id, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, message := range messages {
		assert.Equal(t, int64(i+1), message.Seq)
	}
	assert.Equal(t, first.Id, messages[0].Id)
	assert.Equal(t, second.Id, messages[1].Id)
	assert.Equal(t, third.Id, messages[2].Id)
}

func TestAppendMessageIdempotentOnId(t *testing.T) {
	storage := NewTestStorage(t, "message-idempotent-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	message := newTestMessage(session.Id, domain.MessageRoleUser, "hello")
	require.NoError(t, storage.AppendMessage(ctx, message))
	require.NoError(t, storage.AppendMessage(ctx, message))

	messages, err := storage.GetMessages(ctx, session.Id, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestGetMessagesWindow(t *testing.T) {
	storage := NewTestStorage(t, "message-window-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	contents := []string{"one", "two", "three", "four", "five"}
	for _, content := range contents {
		require.NoError(t, storage.AppendMessage(ctx, newTestMessage(session.Id, domain.MessageRoleUser, content)))
	}

	t.Run("bounded window returns most recent in ascending order", func(t *testing.T) {
		messages, err := storage.GetMessages(ctx, session.Id, 2)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "four", messages[0].Content)
		assert.Equal(t, "five", messages[1].Content)
	})

	t.Run("zero limit means unbounded", func(t *testing.T) {
		messages, err := storage.GetMessages(ctx, session.Id, 0)
		require.NoError(t, err)
		assert.Len(t, messages, len(contents))
	})
}

func TestMessageMetaRoundTrip(t *testing.T) {
	storage := NewTestStorage(t, "message-meta-test")
	ctx := context.Background()
	session := setupSession(t, storage)

	message := newTestMessage(session.Id, domain.MessageRoleAssistant, "done")
	message.Meta = domain.MessageMeta{
		Intent:   domain.IntentResearch,
		Executor: "chat",
		Fallback: true,
		Errors:   []string{"attempt 1 (transient): provider unavailable"},
	}
	require.NoError(t, storage.AppendMessage(ctx, message))

	got, err := storage.GetMessage(ctx, session.Id, message.Id)
	require.NoError(t, err)
	assert.Equal(t, message.Meta, got.Meta)
}

func TestGetMissingMessage(t *testing.T) {
	storage := NewTestStorage(t, "message-missing-test")
	session := setupSession(t, storage)

	_, err := storage.GetMessage(context.Background(), session.Id, "msg_missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLoadContextSnapshot(t *testing.T) {
	storage := NewTestStorage(t, "load-context-test")
	ctx := context.Background()

	workspace := newTestWorkspace()
	require.NoError(t, storage.PersistWorkspace(ctx, workspace))
	session := newTestSession(workspace.Id)
	require.NoError(t, storage.PersistSession(ctx, session))

	for _, content := range []string{"a", "b", "c"} {
		require.NoError(t, storage.AppendMessage(ctx, newTestMessage(session.Id, domain.MessageRoleUser, content)))
	}
	document := domain.Document{
		Id:          "doc_ctx",
		WorkspaceId: workspace.Id,
		SourceName:  "spec.pdf",
		IndexRef:    workspace.Id,
	}
	require.NoError(t, storage.PersistDocument(ctx, document))

	snapshot, err := storage.LoadContext(ctx, workspace.Id, session.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, session.Id, snapshot.Session.Id)
	require.Len(t, snapshot.RecentMessages, 2)
	assert.Equal(t, "b", snapshot.RecentMessages[0].Content)
	assert.Equal(t, "c", snapshot.RecentMessages[1].Content)
	require.Len(t, snapshot.Documents, 1)
	assert.Equal(t, "spec.pdf", snapshot.Documents[0].SourceName)
}
