package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/agent"
	"conductor/domain"
	"conductor/engine"
	"conductor/index"
	"conductor/llm"
	"conductor/srv/sqlite"
)

type apiHarness struct {
	router    *gin.Engine
	completer *llm.StaticCompleter
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	idx, err := index.NewChromemIndex("", chromem.EmbeddingFunc(embed))
	require.NoError(t, err)
	return newAPIHarnessWithIndex(t, idx)
}

func newAPIHarnessWithIndex(t *testing.T, idx index.Index) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := sqlite.NewTestStorage(t, "api-test")

	completer := &llm.StaticCompleter{Response: "hello from the assistant"}

	registry := agent.NewRegistry()
	registry.Register(agent.NewChatExecutor(completer))
	registry.Register(agent.NewDocQAExecutor(completer, idx, 5))
	registry.Register(agent.NewStructuredQueryExecutor(completer))
	registry.Register(agent.NewCodeExecutor(completer))
	registry.Register(agent.NewResearchExecutor(completer))

	opts := engine.Options{
		ContextWindow:   50,
		MaxAttempts:     2,
		ExecutorTimeout: 5 * time.Second,
		RetryInterval:   time.Millisecond,
		RiskThreshold:   agent.RiskMedium,
		TicketTTL:       time.Hour,
	}
	eng, err := engine.NewEngine(store, registry, engine.NewKeywordClassifier(), engine.ThresholdGate{Threshold: opts.RiskThreshold}, opts)
	require.NoError(t, err)

	router := gin.New()
	NewController(store, eng, idx).DefineRoutes(router)

	return &apiHarness{router: router, completer: completer}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

type workspaceResponse struct {
	Workspace domain.Workspace `json:"workspace"`
}

type turnResponse struct {
	Turn domain.TurnResult `json:"turn"`
}

type ticketResponse struct {
	Ticket domain.ApprovalTicket `json:"ticket"`
}

func createWorkspace(t *testing.T, h *apiHarness) domain.Workspace {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/workspaces", gin.H{"name": "Acme", "owner": "ops"})
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeBody[workspaceResponse](t, w).Workspace
}

func TestWorkspaceEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	workspace := createWorkspace(t, h)
	assert.NotEmpty(t, workspace.Id)

	t.Run("get workspace", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/api/v1/workspaces/"+workspace.Id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		got := decodeBody[workspaceResponse](t, w).Workspace
		assert.Equal(t, "Acme", got.Name)
	})

	t.Run("get missing workspace", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/api/v1/workspaces/ws_missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("create without name", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/workspaces", gin.H{"owner": "ops"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rename workspace", func(t *testing.T) {
		w := h.do(t, http.MethodPut, "/api/v1/workspaces/"+workspace.Id, gin.H{"name": "Acme Corp"})
		require.Equal(t, http.StatusOK, w.Code)
		got := decodeBody[workspaceResponse](t, w).Workspace
		assert.Equal(t, "Acme Corp", got.Name)
	})

	t.Run("rename missing workspace", func(t *testing.T) {
		w := h.do(t, http.MethodPut, "/api/v1/workspaces/ws_missing", gin.H{"name": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete workspace", func(t *testing.T) {
		w := h.do(t, http.MethodDelete, "/api/v1/workspaces/"+workspace.Id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = h.do(t, http.MethodGet, "/api/v1/workspaces/"+workspace.Id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

type sessionResponse struct {
	Session domain.Session `json:"session"`
}

type sessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

func TestSessionEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	workspace := createWorkspace(t, h)
	sessionsPath := fmt.Sprintf("/api/v1/workspaces/%s/sessions", workspace.Id)

	w := h.do(t, http.MethodPost, sessionsPath, gin.H{"name": "support thread"})
	require.Equal(t, http.StatusCreated, w.Code)
	session := decodeBody[sessionResponse](t, w).Session

	t.Run("rename session", func(t *testing.T) {
		w := h.do(t, http.MethodPut, sessionsPath+"/"+session.Id, gin.H{"name": "escalation thread"})
		require.Equal(t, http.StatusOK, w.Code)
		got := decodeBody[sessionResponse](t, w).Session
		assert.Equal(t, "escalation thread", got.Name)
	})

	t.Run("rename without name", func(t *testing.T) {
		w := h.do(t, http.MethodPut, sessionsPath+"/"+session.Id, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rename missing session", func(t *testing.T) {
		w := h.do(t, http.MethodPut, sessionsPath+"/sess_missing", gin.H{"name": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("renaming the workspace keeps its sessions", func(t *testing.T) {
		w := h.do(t, http.MethodPut, "/api/v1/workspaces/"+workspace.Id, gin.H{"name": "Acme Support"})
		require.Equal(t, http.StatusOK, w.Code)

		w = h.do(t, http.MethodGet, sessionsPath, nil)
		require.Equal(t, http.StatusOK, w.Code)
		sessions := decodeBody[sessionsResponse](t, w).Sessions
		require.Len(t, sessions, 1)
		assert.Equal(t, session.Id, sessions[0].Id)
	})

	t.Run("delete session", func(t *testing.T) {
		w := h.do(t, http.MethodDelete, sessionsPath+"/"+session.Id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = h.do(t, http.MethodGet, sessionsPath, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[sessionsResponse](t, w).Sessions)
	})

	t.Run("delete missing session", func(t *testing.T) {
		w := h.do(t, http.MethodDelete, sessionsPath+"/sess_missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSubmitTurn(t *testing.T) {
	h := newAPIHarness(t)
	workspace := createWorkspace(t, h)
	turnsPath := fmt.Sprintf("/api/v1/workspaces/%s/sessions/sess_1/turns", workspace.Id)

	t.Run("chat turn completes", func(t *testing.T) {
		w := h.do(t, http.MethodPost, turnsPath, gin.H{"text": "hey, how are you?"})
		require.Equal(t, http.StatusOK, w.Code)
		turn := decodeBody[turnResponse](t, w).Turn
		assert.Equal(t, domain.TurnDone, turn.Status)
		require.NotNil(t, turn.Message)
		assert.Equal(t, "hello from the assistant", turn.Message.Content)
	})

	t.Run("blank text rejected", func(t *testing.T) {
		w := h.do(t, http.MethodPost, turnsPath, gin.H{"text": "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/workspaces/ws_missing/sessions/sess_1/turns", gin.H{"text": "hi"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestApprovalFlow(t *testing.T) {
	h := newAPIHarness(t)
	workspace := createWorkspace(t, h)
	turnsPath := fmt.Sprintf("/api/v1/workspaces/%s/sessions/sess_approvals/turns", workspace.Id)

	h.completer.Response = "DROP TABLE customers;"
	w := h.do(t, http.MethodPost, turnsPath, gin.H{"text": "Drop the customers table"})
	require.Equal(t, http.StatusAccepted, w.Code)
	turn := decodeBody[turnResponse](t, w).Turn
	require.Equal(t, domain.TurnPending, turn.Status)
	require.NotEmpty(t, turn.TicketId)

	t.Run("ticket is visible and pending", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/api/v1/tickets/"+turn.TicketId, nil)
		require.Equal(t, http.StatusOK, w.Code)
		ticket := decodeBody[ticketResponse](t, w).Ticket
		assert.Equal(t, domain.TicketStatusPending, ticket.Status)
		assert.Contains(t, ticket.ProposedContent, "DROP TABLE customers;")
	})

	t.Run("session is busy while pending", func(t *testing.T) {
		w := h.do(t, http.MethodPost, turnsPath, gin.H{"text": "hello?"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid decision rejected", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/tickets/"+turn.TicketId+"/resolve", gin.H{"decision": "maybe"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("approval persists the proposal", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/tickets/"+turn.TicketId+"/resolve", gin.H{"decision": "approved"})
		require.Equal(t, http.StatusOK, w.Code)
		resolved := decodeBody[turnResponse](t, w).Turn
		assert.Equal(t, domain.TurnDone, resolved.Status)
		require.NotNil(t, resolved.Message)
		assert.Contains(t, resolved.Message.Content, "DROP TABLE customers;")
	})

	t.Run("duplicate resolve returns the same outcome", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/tickets/"+turn.TicketId+"/resolve", gin.H{"decision": "rejected"})
		require.Equal(t, http.StatusOK, w.Code)
		resolved := decodeBody[turnResponse](t, w).Turn
		assert.Equal(t, domain.TurnDone, resolved.Status)
		assert.Contains(t, resolved.Message.Content, "DROP TABLE customers;")
	})

	t.Run("resolve missing ticket", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/tickets/tkt_missing/resolve", gin.H{"decision": "approved"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDocumentEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	workspace := createWorkspace(t, h)
	docsPath := fmt.Sprintf("/api/v1/workspaces/%s/documents", workspace.Id)

	w := h.do(t, http.MethodPost, docsPath, gin.H{
		"sourceName": "contract.txt",
		"content":    "Termination requires notice.\n\nPayment is due in thirty days.",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("documents are listed", func(t *testing.T) {
		w := h.do(t, http.MethodGet, docsPath, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var out struct {
			Documents []domain.Document `json:"documents"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out.Documents, 1)
		assert.Equal(t, "contract.txt", out.Documents[0].SourceName)
	})

	t.Run("ingest into missing workspace", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/workspaces/ws_missing/documents", gin.H{
			"sourceName": "x.txt",
			"content":    "y",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

type failingIndex struct{}

func (failingIndex) Upsert(ctx context.Context, workspaceId, documentId string, chunks []string) error {
	return errors.New("embedding provider unavailable")
}

func (failingIndex) Query(ctx context.Context, workspaceId, text string, k int) ([]index.Chunk, error) {
	return nil, errors.New("embedding provider unavailable")
}

func TestIngestIndexFailureLeavesNoMetadata(t *testing.T) {
	h := newAPIHarnessWithIndex(t, failingIndex{})
	workspace := createWorkspace(t, h)
	docsPath := fmt.Sprintf("/api/v1/workspaces/%s/documents", workspace.Id)

	w := h.do(t, http.MethodPost, docsPath, gin.H{
		"sourceName": "contract.txt",
		"content":    "Termination requires notice.",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// the document record must not survive a failed index write
	w = h.do(t, http.MethodGet, docsPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Documents []domain.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Empty(t, out.Documents)
}
