package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carechat/internal/apperr"
	"carechat/internal/cache"
	"carechat/internal/config"
	"carechat/internal/llm"
	"carechat/internal/models"
	"carechat/internal/relay"
	"carechat/internal/store"
)

const systemPrompt = "You are a helpful assistant."

// Handler wires HTTP routes to the store, the upstream LLM clients and the
// stream relay. The llm client is nil when no API key is configured; the
// endpoints that need it answer 500 with an explicit message.
type Handler struct {
	cfg     *config.Config
	store   *store.Service
	history *cache.History
	llm     llm.Client
	agent   *llm.Agent
	relay   *relay.Relay
	logger  *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg *config.Config, st *store.Service, history *cache.History, llmClient llm.Client, agent *llm.Agent, rl *relay.Relay, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:     cfg,
		store:   st,
		history: history,
		llm:     llmClient,
		agent:   agent,
		relay:   rl,
		logger:  logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/threads", h.listThreads)
	api.POST("/threads", h.createThread)
	api.GET("/messages", h.listMessages)
	api.POST("/messages", h.sendMessage)
	api.POST("/chat", h.chat)
	api.POST("/workflow", h.runWorkflow)
	api.GET("/workflow", h.workflowStatus)
	api.POST("/data-record", h.dataRecord)
	api.GET("/test-ai", h.testAI)
}

func (h *Handler) abortError(c *gin.Context, err error) {
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
}

func (h *Handler) requireLLM(c *gin.Context) bool {
	if h.llm == nil {
		h.logger.Error("OpenAI API key missing", zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OpenAI API key is not configured"})
		return false
	}
	return true
}

// messageView is the wire shape of a stored message. It carries both the
// canonical role and the legacy sender value the browser client reads.
type messageView struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	Role      models.Role `json:"role"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

func toView(m models.Message) messageView {
	return messageView{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      m.Role,
		Sender:    m.Role.Sender(),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func toViews(msgs []models.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toView(m))
	}
	return views
}

func (h *Handler) listThreads(c *gin.Context) {
	threads, err := h.store.ListThreads(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

func (h *Handler) createThread(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	thread, err := h.store.CreateThread(c.Request.Context(), req.Title)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (h *Handler) listMessages(c *gin.Context) {
	threadID := c.Query("threadId")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thread ID is required"})
		return
	}
	ctx := c.Request.Context()
	if msgs, ok := h.history.Load(ctx, threadID); ok {
		c.JSON(http.StatusOK, toViews(msgs))
		return
	}
	msgs, err := h.store.ListMessages(ctx, threadID)
	if err != nil {
		h.abortError(c, err)
		return
	}
	h.history.Cache(ctx, threadID, msgs)
	c.JSON(http.StatusOK, toViews(msgs))
}

// Non-streaming message exchange: persist the user message, run one
// completion over the supplied history, persist and return the reply.
type historyItem struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

type sendMessageRequest struct {
	ThreadID string        `json:"threadId"`
	Content  string        `json:"content"`
	History  []historyItem `json:"history"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ThreadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thread ID is required"})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if !h.requireLLM(c) {
		return
	}
	ctx := c.Request.Context()

	history := make([]*models.Message, 0, len(req.History)+2)
	history = append(history, &models.Message{Role: models.RoleSystem, Content: systemPrompt})
	for _, item := range req.History {
		history = append(history, &models.Message{
			Role:    models.RoleFromSender(item.Sender),
			Content: item.Content,
		})
	}
	history = append(history, &models.Message{Role: models.RoleUser, Content: req.Content})

	aiReply, err := h.llm.Complete(ctx, history)
	if err != nil {
		h.abortError(c, err)
		return
	}

	userMsg, err := h.store.CreateMessage(ctx, req.ThreadID, models.RoleUser, req.Content)
	if err != nil {
		h.abortError(c, err)
		return
	}
	aiMsg, err := h.store.CreateMessage(ctx, req.ThreadID, models.RoleAssistant, aiReply.Content)
	if err != nil {
		h.abortError(c, err)
		return
	}
	h.history.Invalidate(ctx, req.ThreadID)

	c.JSON(http.StatusOK, gin.H{
		"userMessage": toView(*userMsg),
		"aiMessage":   toView(*aiMsg),
	})
}

// Streaming chat: relay the completion stream to the client as SSE while
// the relay reassembles and persists the assistant reply.
type chatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No messages provided"})
		return
	}
	if !h.requireLLM(c) {
		return
	}
	ctx := c.Request.Context()

	threadID := req.Messages[0].ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	history := make([]*models.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := models.Role(msg.Role)
		if !models.ValidRole(msg.Role) {
			role = models.RoleUser
		}
		history = append(history, &models.Message{Role: role, Content: msg.Content})
	}

	// the last element is normally the newly submitted user turn; replayed
	// assistant or system tails must not be stored as user input
	latest := history[len(history)-1]
	if latest.Role == models.RoleUser {
		if _, err := h.store.CreateMessage(ctx, threadID, models.RoleUser, latest.Content); err != nil {
			h.abortError(c, err)
			return
		}
		h.history.Invalidate(ctx, threadID)
	}

	stream, err := h.llm.Stream(ctx, history)
	if err != nil {
		h.abortError(c, err)
		return
	}
	defer stream.Close()

	sink, err := relay.NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeSSEHeaders(c)

	h.relay.Run(ctx, threadID, stream, sink)
	h.history.Invalidate(ctx, threadID)
}

// Workflow passthrough to the agent platform. Decoded text deltas are
// re-framed as SSE; workflow runs are threadless and not persisted.
type workflowRequest struct {
	Inputs map[string]any `json:"inputs"`
}

func (h *Handler) runWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()

	stream, err := h.agent.RunWorkflow(ctx, req.Inputs)
	if err != nil {
		h.abortError(c, err)
		return
	}
	defer stream.Close()

	sink, err := relay.NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeSSEHeaders(c)

	h.relay.Pipe(ctx, stream, sink)
}

// Data-record passthrough: a second agent app reached via chat-messages,
// used to capture structured health records from free text. Threadless,
// like workflow runs.
type dataRecordRequest struct {
	Inputs struct {
		Input string `json:"input"`
	} `json:"inputs"`
}

func (h *Handler) dataRecord(c *gin.Context) {
	var req dataRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()

	stream, err := h.agent.ChatMessage(ctx, req.Inputs.Input)
	if err != nil {
		h.abortError(c, err)
		return
	}
	defer stream.Close()

	sink, err := relay.NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeSSEHeaders(c)

	h.relay.Pipe(ctx, stream, sink)
}

func (h *Handler) workflowStatus(c *gin.Context) {
	workflowID := c.Query("workflow_id")
	if workflowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Workflow ID is required"})
		return
	}
	raw, err := h.agent.WorkflowStatus(c.Request.Context(), workflowID)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// testAI is a connectivity probe against the completion upstream.
func (h *Handler) testAI(c *gin.Context) {
	if !h.requireLLM(c) {
		return
	}
	reply, err := h.llm.Complete(c.Request.Context(), []*models.Message{
		{Role: models.RoleUser, Content: "Hello, how are you?"},
	})
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": models.RoleAssistant, "content": reply.Content})
}

func writeSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}
