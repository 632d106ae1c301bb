package chat

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"telecare-backend/internal/service/chat"
	"telecare-backend/pkg/response"
)

// Handler handles chat message HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{chatService: chatService}
}

// SendMessageRequest represents a message send request
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage sends a message into a conversation
// POST /v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), callerID, conversationID, req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// GetMessages returns the live timeline of a conversation, oldest first
// GET /v1/conversations/:id/messages
func (h *Handler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	messages, err := h.chatService.Messages(c.Request.Context(), callerID, conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// GetHistory pages through the durable message archive
// GET /v1/conversations/:id/history
func (h *Handler) GetHistory(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var pageState []byte
	if cursor := c.Query("cursor"); cursor != "" {
		pageState, err = base64.URLEncoding.DecodeString(cursor)
		if err != nil {
			response.ValidationError(c, "Invalid cursor")
			return
		}
	}

	messages, nextPageState, err := h.chatService.History(c.Request.Context(), callerID, conversationID, limit, pageState)
	if err != nil {
		response.FromError(c, err)
		return
	}

	result := gin.H{
		"messages": messages,
		"count":    len(messages),
	}
	if len(nextPageState) > 0 {
		result["next_cursor"] = base64.URLEncoding.EncodeToString(nextPageState)
	}
	response.Success(c, http.StatusOK, result)
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
