package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-search/pkg/chat"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/stream"
	"github.com/mikeboe/deep-search/pkg/view"
)

// RunIDHeader carries the id of a started run so a client can recover it.
const RunIDHeader = "X-Message-Id"

type Handler struct {
	Service *Service
	Chat    *chat.Service
	Tools   *chat.SearchToolset

	mcp http.Handler
}

func NewHandler(s *Service, c *chat.Service, tools *chat.SearchToolset) *Handler {
	return &Handler{Service: s, Chat: c, Tools: tools, mcp: newMCPHandler(NewMCPServer(s, tools))}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// The streamable transport uses POST for calls, GET for server events
	// and DELETE to end a session.
	r.Any("/mcp", gin.WrapH(h.mcp))
	api := r.Group("/api")
	{
		api.POST("/deep-search", h.startDeepSearch)
		api.GET("/deep-search", h.listRuns)
		api.GET("/deep-search/:id", h.getRun)
		api.GET("/deep-search/:id/view", h.getView)
		api.GET("/deep-search/:id/logs", h.getRunLogs)

		// Chat Routes
		if h.Chat != nil {
			api.POST("/chat/conversations", h.createConversation)
			api.GET("/chat/conversations", h.listConversations)
			api.GET("/chat/conversations/:id/messages", h.getMessages)
			api.POST("/chat/conversations/:id/messages", h.sendMessage)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, research.ErrRunNotFound), errors.Is(err, ErrLogsUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func setStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// startDeepSearch streams the frames of a new run. The run is not tied to
// the request: a client that disconnects only stops receiving frames.
func (h *Handler) startDeepSearch(c *gin.Context) {
	var req research.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, frames, err := h.Service.StartRun(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.Header(RunIDHeader, runID)
	setStreamHeaders(c)
	c.Status(http.StatusOK)

	enc := stream.NewEncoder(c.Writer)
	if err := frames.Drain(c.Request.Context(), enc.Encode); err != nil {
		h.Service.Engine.Logger.Info("Stream consumer went away", "run_id", runID, "error", err)
	}
}

func (h *Handler) listRuns(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId must be a uuid"})
		return
	}
	runs, err := h.Service.ListRuns(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) getRun(c *gin.Context) {
	rec, err := h.Service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type viewResponse struct {
	Recoverable bool        `json:"recoverable"`
	State       *view.State `json:"state,omitempty"`
}

func (h *Handler) getView(c *gin.Context) {
	state, err := h.Service.View(c.Request.Context(), c.Param("id"))
	if errors.Is(err, research.ErrRecoveryUnavailable) {
		c.JSON(http.StatusOK, viewResponse{Recoverable: false})
		return
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewResponse{Recoverable: true, State: &state})
}

func (h *Handler) getRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetRunLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
