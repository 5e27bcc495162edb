package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"conductor/common"
	"conductor/domain"
	"conductor/engine"
	"conductor/index"
	"conductor/logger"
	"conductor/srv"
)

// Controller wires HTTP routes to the engine and storage.
type Controller struct {
	store srv.Storage
	eng   *engine.Engine
	idx   index.Index
	log   zerolog.Logger
}

func NewController(store srv.Storage, eng *engine.Engine, idx index.Index) *Controller {
	return &Controller{
		store: store,
		eng:   eng,
		idx:   idx,
		log:   logger.Get().With().Str("component", "api").Logger(),
	}
}

func (ctrl *Controller) DefineRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	v1.POST("/workspaces", ctrl.CreateWorkspaceHandler)
	v1.GET("/workspaces", ctrl.GetWorkspacesHandler)
	v1.GET("/workspaces/:workspaceId", ctrl.GetWorkspaceHandler)
	v1.PUT("/workspaces/:workspaceId", ctrl.UpdateWorkspaceHandler)
	v1.DELETE("/workspaces/:workspaceId", ctrl.DeleteWorkspaceHandler)

	v1.POST("/workspaces/:workspaceId/sessions", ctrl.CreateSessionHandler)
	v1.GET("/workspaces/:workspaceId/sessions", ctrl.GetSessionsHandler)
	v1.PUT("/workspaces/:workspaceId/sessions/:sessionId", ctrl.UpdateSessionHandler)
	v1.DELETE("/workspaces/:workspaceId/sessions/:sessionId", ctrl.DeleteSessionHandler)
	v1.GET("/workspaces/:workspaceId/sessions/:sessionId/messages", ctrl.GetMessagesHandler)
	v1.POST("/workspaces/:workspaceId/sessions/:sessionId/turns", ctrl.SubmitTurnHandler)

	v1.POST("/workspaces/:workspaceId/documents", ctrl.IngestDocumentHandler)
	v1.GET("/workspaces/:workspaceId/documents", ctrl.GetDocumentsHandler)
	v1.DELETE("/workspaces/:workspaceId/documents/:documentId", ctrl.DeleteDocumentHandler)

	v1.GET("/tickets/:ticketId", ctrl.GetTicketHandler)
	v1.POST("/tickets/:ticketId/resolve", ctrl.ResolveTicketHandler)
}

type CreateWorkspaceRequest struct {
	Name  string `json:"name" binding:"required"`
	Owner string `json:"owner"`
}

func (ctrl *Controller) CreateWorkspaceHandler(c *gin.Context) {
	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workspace := domain.Workspace{
		Id:      "ws_" + ksuid.New().String(),
		Name:    req.Name,
		Owner:   req.Owner,
		Created: time.Now().UTC(),
	}
	if err := ctrl.store.PersistWorkspace(c.Request.Context(), workspace); err != nil {
		ctrl.internalError(c, err, "failed to create workspace")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"workspace": workspace})
}

func (ctrl *Controller) GetWorkspacesHandler(c *gin.Context) {
	workspaces, err := ctrl.store.GetAllWorkspaces(c.Request.Context())
	if err != nil {
		ctrl.internalError(c, err, "failed to list workspaces")
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (ctrl *Controller) GetWorkspaceHandler(c *gin.Context) {
	workspace, err := ctrl.store.GetWorkspace(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		ctrl.storeError(c, err, "workspace")
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": workspace})
}

type UpdateWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

func (ctrl *Controller) UpdateWorkspaceHandler(c *gin.Context) {
	var req UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workspace, err := ctrl.store.GetWorkspace(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		ctrl.storeError(c, err, "workspace")
		return
	}

	workspace.Name = req.Name
	if err := ctrl.store.PersistWorkspace(c.Request.Context(), workspace); err != nil {
		ctrl.internalError(c, err, "failed to update workspace")
		return
	}

	c.JSON(http.StatusOK, gin.H{"workspace": workspace})
}

func (ctrl *Controller) DeleteWorkspaceHandler(c *gin.Context) {
	if err := ctrl.store.DeleteWorkspace(c.Request.Context(), c.Param("workspaceId")); err != nil {
		ctrl.storeError(c, err, "workspace")
		return
	}
	c.Status(http.StatusNoContent)
}

type CreateSessionRequest struct {
	Name string `json:"name"`
}

func (ctrl *Controller) CreateSessionHandler(c *gin.Context) {
	workspaceId := c.Param("workspaceId")

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := ctrl.store.GetWorkspace(c.Request.Context(), workspaceId); err != nil {
		ctrl.storeError(c, err, "workspace")
		return
	}

	now := time.Now().UTC()
	session := domain.Session{
		Id:          "sess_" + ksuid.New().String(),
		WorkspaceId: workspaceId,
		Name:        req.Name,
		Created:     now,
		Updated:     now,
	}
	if err := ctrl.store.PersistSession(c.Request.Context(), session); err != nil {
		ctrl.internalError(c, err, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (ctrl *Controller) GetSessionsHandler(c *gin.Context) {
	sessions, err := ctrl.store.GetSessions(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		ctrl.internalError(c, err, "failed to list sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type UpdateSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (ctrl *Controller) UpdateSessionHandler(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := ctrl.store.GetSession(c.Request.Context(), c.Param("workspaceId"), c.Param("sessionId"))
	if err != nil {
		ctrl.storeError(c, err, "session")
		return
	}

	session.Name = req.Name
	session.Updated = time.Now().UTC()
	if err := ctrl.store.PersistSession(c.Request.Context(), session); err != nil {
		ctrl.internalError(c, err, "failed to update session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (ctrl *Controller) DeleteSessionHandler(c *gin.Context) {
	if err := ctrl.store.DeleteSession(c.Request.Context(), c.Param("workspaceId"), c.Param("sessionId")); err != nil {
		ctrl.storeError(c, err, "session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *Controller) GetMessagesHandler(c *gin.Context) {
	workspaceId := c.Param("workspaceId")
	sessionId := c.Param("sessionId")

	if _, err := ctrl.store.GetSession(c.Request.Context(), workspaceId, sessionId); err != nil {
		ctrl.storeError(c, err, "session")
		return
	}

	messages, err := ctrl.store.GetMessages(c.Request.Context(), sessionId, 0)
	if err != nil {
		ctrl.internalError(c, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type SubmitTurnRequest struct {
	Text string `json:"text" binding:"required"`
}

// SubmitTurnHandler runs one turn synchronously. A suspended turn comes back
// 202 with its ticket id; a busy session is 409.
func (ctrl *Controller) SubmitTurnHandler(c *gin.Context) {
	workspaceId := c.Param("workspaceId")
	sessionId := c.Param("sessionId")

	var req SubmitTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be blank"})
		return
	}

	result, err := ctrl.eng.Process(c.Request.Context(), workspaceId, sessionId, req.Text)
	if err != nil {
		ctrl.engineError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == domain.TurnPending {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"turn": result})
}

func (ctrl *Controller) GetTicketHandler(c *gin.Context) {
	ticket, err := ctrl.store.GetTicket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		ctrl.storeError(c, err, "ticket")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

type ResolveTicketRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (ctrl *Controller) ResolveTicketHandler(c *gin.Context) {
	var req ResolveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := ctrl.eng.Resume(c.Request.Context(), c.Param("ticketId"), engine.Decision(req.Decision))
	if err != nil {
		ctrl.engineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turn": result})
}

type IngestDocumentRequest struct {
	SourceName string `json:"sourceName" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// IngestDocumentHandler chunks the document, indexes the chunks under the
// owning workspace and records the document metadata.
func (ctrl *Controller) IngestDocumentHandler(c *gin.Context) {
	workspaceId := c.Param("workspaceId")

	var req IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := ctrl.store.GetWorkspace(c.Request.Context(), workspaceId); err != nil {
		ctrl.storeError(c, err, "workspace")
		return
	}

	document := domain.Document{
		Id:          "doc_" + ksuid.New().String(),
		WorkspaceId: workspaceId,
		SourceName:  req.SourceName,
		IndexRef:    workspaceId,
		Ingested:    time.Now().UTC(),
	}

	// metadata first: an indexed chunk must never exist without a Document
	// record that can find and delete it
	if err := ctrl.store.PersistDocument(c.Request.Context(), document); err != nil {
		ctrl.internalError(c, err, "failed to persist document")
		return
	}

	chunks := chunkContent(req.Content)
	if err := ctrl.idx.Upsert(c.Request.Context(), workspaceId, document.Id, chunks); err != nil {
		if delErr := ctrl.store.DeleteDocument(c.Request.Context(), workspaceId, document.Id); delErr != nil {
			ctrl.log.Error().Err(delErr).Str("document_id", document.Id).Msg("failed to remove document metadata after index error")
		}
		ctrl.internalError(c, err, "failed to index document")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": document, "chunks": len(chunks)})
}

func (ctrl *Controller) GetDocumentsHandler(c *gin.Context) {
	documents, err := ctrl.store.ListWorkspaceDocuments(c.Request.Context(), c.Param("workspaceId"))
	if err != nil {
		ctrl.internalError(c, err, "failed to list documents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": documents})
}

func (ctrl *Controller) DeleteDocumentHandler(c *gin.Context) {
	if err := ctrl.store.DeleteDocument(c.Request.Context(), c.Param("workspaceId"), c.Param("documentId")); err != nil {
		ctrl.storeError(c, err, "document")
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *Controller) engineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// client went away; nothing useful to write
		c.Status(http.StatusRequestTimeout)
	default:
		ctrl.internalError(c, err, "turn processing failed")
	}
}

func (ctrl *Controller) storeError(c *gin.Context, err error, kind string) {
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found"})
		return
	}
	ctrl.internalError(c, err, "storage operation failed")
}

func (ctrl *Controller) internalError(c *gin.Context, err error, msg string) {
	ctrl.log.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// chunkContent splits document text on blank lines, merging runts so chunks
// stay a useful retrieval size.
func chunkContent(content string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > 1200 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
