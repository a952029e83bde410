package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/username/chatkit/internal/adapters/api/websocket"
	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/domain/metrics"
	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/domain/services"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/httputil"
)

// ConnectionReporter exposes transport-level connection details for the
// system endpoints. The NATS adapter implements it.
type ConnectionReporter interface {
	GetConnectionStatus() map[string]interface{}
}

// APIHandlers contains all HTTP API handlers
type APIHandlers struct {
	storage      ports.StoragePort
	messaging    ports.MessagingPort
	orchestrator *services.SessionOrchestrator
	catalog      *services.ModelCatalog
	collector    *metrics.Collector
	wsHub        *websocket.Hub
	connections  ConnectionReporter
}

// NewAPIHandlers creates a new API handlers instance. The collector and
// connection reporter may be nil.
func NewAPIHandlers(
	storage ports.StoragePort,
	messaging ports.MessagingPort,
	orchestrator *services.SessionOrchestrator,
	catalog *services.ModelCatalog,
	collector *metrics.Collector,
	hub *websocket.Hub,
	connections ConnectionReporter,
) *APIHandlers {
	return &APIHandlers{
		storage:      storage,
		messaging:    messaging,
		orchestrator: orchestrator,
		catalog:      catalog,
		collector:    collector,
		wsHub:        hub,
		connections:  connections,
	}
}

// SetupRoutes configures all API routes
func (h *APIHandlers) SetupRoutes(r *gin.Engine) {
	r.Use(httputil.CORSMiddleware(httputil.DefaultMiddlewareConfig))
	r.Use(httputil.TimeoutMiddleware(httputil.DefaultTimeouts))

	r.GET("/health", h.handleHealth)
	r.GET("/ws", h.wsHub.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		// Conversations
		api.GET("/conversations", h.listConversations)
		api.POST("/conversations", h.createConversation)
		api.DELETE("/conversations", h.clearConversations)
		api.GET("/conversations/:id", h.getConversation)
		api.PUT("/conversations/:id", h.updateConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)
		api.POST("/conversations/:id/select", h.selectConversation)
		api.GET("/conversations/:id/messages", h.getMessages)

		// Messages target the active conversation
		api.POST("/messages", h.sendMessage)
		api.POST("/messages/stop", h.stopGenerating)

		// Models and endpoint state
		api.GET("/models", h.listModels)
		api.POST("/models/refresh", h.refreshModels)
		api.GET("/reachability", h.getReachability)

		// System introspection
		api.GET("/system/health", h.getSystemHealth)
		api.GET("/system/metrics", h.getSystemMetrics)
		api.GET("/system/connections", h.getSystemConnections)
	}
}

// Health check endpoint
func (h *APIHandlers) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":    constants.StatusOK,
		"timestamp": time.Now().Unix(),
		"service":   constants.ServiceName,
	}

	ctx, cancel := httputil.WithShortTimeout()
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		status["storage"] = constants.StatusError
		status["storage_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["storage"] = constants.StatusOK

	if err := h.messaging.Ping(); err != nil {
		status["messaging"] = constants.StatusError
		status["messaging_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["messaging"] = constants.StatusOK

	c.JSON(http.StatusOK, status)
}

// Conversation handlers

func (h *APIHandlers) listConversations(c *gin.Context) {
	pagination := httputil.ParsePaginationParams(c)

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	conversations, err := h.storage.GetConversations(ctx, pagination.Limit, pagination.Offset)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	active := ""
	if conversation := h.orchestrator.ActiveConversation(); conversation != nil {
		active = conversation.ID
	}

	httputil.SuccessResponseWithMeta(c, gin.H{
		"conversations": conversations,
		"active_id":     active,
	}, pagination)
}

func (h *APIHandlers) createConversation(c *gin.Context) {
	var req struct {
		ModelName string `json:"model_name"`
	}
	// An empty body is fine; the default model is used.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BadRequestError(c, err)
			return
		}
	}

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	conversation, err := h.orchestrator.CreateConversation(ctx, req.ModelName)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	httputil.CreatedResponse(c, conversation)
}

func (h *APIHandlers) getConversation(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	conversation, err := h.storage.GetConversation(ctx, id)
	if err != nil {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}

	httputil.SuccessResponse(c, conversation)
}

func (h *APIHandlers) updateConversation(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	conversation, err := h.storage.GetConversation(ctx, id)
	if err != nil {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}

	var req struct {
		Title     string `json:"title"`
		ModelName string `json:"model_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	if req.Title != "" {
		conversation.SetTitle(req.Title)
	}
	if req.ModelName != "" {
		conversation.SetModel(req.ModelName)
	}

	if err := h.storage.UpdateConversation(ctx, conversation); err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	httputil.SuccessResponse(c, conversation)
}

func (h *APIHandlers) deleteConversation(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	if err := h.orchestrator.DeleteConversation(ctx, id); err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{"message": constants.MsgConversationDeleted})
}

func (h *APIHandlers) clearConversations(c *gin.Context) {
	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	if err := h.orchestrator.ClearAllConversations(ctx); err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{"message": constants.MsgConversationsCleared})
}

func (h *APIHandlers) selectConversation(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	if err := h.orchestrator.SelectConversation(ctx, id); err != nil {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}

	httputil.SuccessResponse(c, gin.H{
		"conversation": h.orchestrator.ActiveConversation(),
		"messages":     h.orchestrator.ActiveMessages(),
	})
}

// Message handlers

func (h *APIHandlers) getMessages(c *gin.Context) {
	conversationID := c.Param("id")

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	messages, err := h.storage.GetMessages(ctx, conversationID)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ModelName   string `json:"model_name"`
	Attachments []struct {
		FileName string `json:"file_name"`
		Content  string `json:"content"`
	} `json:"attachments"`
}

// sendMessage streams a full exchange synchronously. The response carries
// the completed assistant message, including the partial content committed
// on cancellation or failure.
func (h *APIHandlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	if req.ModelName == "" {
		if conversation := h.orchestrator.ActiveConversation(); conversation != nil {
			req.ModelName = conversation.ModelName
		}
	}

	attachments := make([]entities.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, entities.Attachment{
			FileName: a.FileName,
			Content:  a.Content,
		})
	}

	// No timeout here; generation runs until the model finishes or the
	// client goes away. Client disconnect cancels via the request context.
	message, err := h.orchestrator.SendMessage(c.Request.Context(), req.Content, attachments, req.ModelName)
	if err != nil {
		var failed *services.RequestFailedError
		switch {
		case errors.Is(err, services.ErrMessageEmpty), errors.Is(err, services.ErrModelNameEmpty):
			httputil.BadRequestError(c, err)
		case errors.Is(err, services.ErrNoActiveConversation):
			httputil.ConflictError(c, err)
		case errors.As(err, &failed):
			// The partial message is committed; hand it back with the error.
			c.JSON(http.StatusBadGateway, httputil.StandardResponse{
				Success: false,
				Error:   err.Error(),
				Data:    gin.H{"message": message},
			})
		default:
			httputil.InternalServerError(c, err)
		}
		return
	}

	httputil.SuccessResponse(c, gin.H{"message": message})
}

func (h *APIHandlers) stopGenerating(c *gin.Context) {
	h.orchestrator.StopGenerating()
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgGenerationStopped})
}

// Model and endpoint handlers

func (h *APIHandlers) listModels(c *gin.Context) {
	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	models, err := h.catalog.Models(ctx)
	if err != nil {
		httputil.ServiceUnavailableError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{"models": models})
}

func (h *APIHandlers) refreshModels(c *gin.Context) {
	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	models, err := h.orchestrator.RefreshModels(ctx)
	if err != nil {
		httputil.ServiceUnavailableError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{
		"models":  models,
		"message": constants.MsgModelsRefreshed,
	})
}

func (h *APIHandlers) getReachability(c *gin.Context) {
	httputil.SuccessResponse(c, gin.H{
		"reachable": h.orchestrator.Reachable(),
		"timestamp": time.Now(),
	})
}

// System introspection handlers

func (h *APIHandlers) getSystemHealth(c *gin.Context) {
	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	health := gin.H{
		"api":       "healthy",
		"endpoint":  "unknown",
		"nats":      "unknown",
		"database":  "unknown",
		"timestamp": time.Now(),
	}

	if err := h.storage.Ping(ctx); err != nil {
		health["database"] = constants.StatusError
	} else {
		health["database"] = "healthy"
	}

	if err := h.messaging.Ping(); err != nil {
		health["nats"] = constants.StatusError
	} else {
		health["nats"] = "healthy"
	}

	if h.orchestrator.Reachable() {
		health["endpoint"] = "healthy"
	} else {
		health["endpoint"] = constants.StatusError
	}

	c.JSON(http.StatusOK, health)
}

func (h *APIHandlers) getSystemMetrics(c *gin.Context) {
	if h.collector == nil {
		httputil.SuccessResponse(c, gin.H{"timestamp": time.Now()})
		return
	}

	ctx, cancel := httputil.WithDefaultTimeout()
	defer cancel()

	httputil.SuccessResponse(c, h.collector.Snapshot(ctx))
}

func (h *APIHandlers) getSystemConnections(c *gin.Context) {
	connections := gin.H{
		"websocket": h.wsHub.GetStats(),
		"timestamp": time.Now(),
	}
	if h.connections != nil {
		connections["nats"] = h.connections.GetConnectionStatus()
	}

	httputil.SuccessResponse(c, connections)
}
