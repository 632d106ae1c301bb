package conversation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"telecare-backend/internal/service/conversation"
	"telecare-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	registry *conversation.Registry
}

// NewHandler creates a new conversation handler
func NewHandler(registry *conversation.Registry) *Handler {
	return &Handler{registry: registry}
}

// CreateDirectRequest represents a direct conversation request
type CreateDirectRequest struct {
	OtherUserID string `json:"other_user_id" binding:"required,uuid"`
	DisplayName string `json:"display_name" binding:"required"`
}

// CreateDirect returns the direct conversation with the other user, creating
// it if it does not exist yet
// POST /v1/conversations/direct
func (h *Handler) CreateDirect(c *gin.Context) {
	var req CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	otherID, err := uuid.Parse(req.OtherUserID)
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	conv, err := h.registry.GetOrCreateDirect(c.Request.Context(), callerID, otherID, req.DisplayName)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// Get returns a conversation the caller participates in
// GET /v1/conversations/:id
func (h *Handler) Get(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	conv, err := h.registry.Get(c.Request.Context(), callerID, conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// List returns the caller's conversations, most recent activity first
// GET /v1/conversations
func (h *Handler) List(c *gin.Context) {
	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.registry.List(c.Request.Context(), callerID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"conversations": conversations,
		"count":         len(conversations),
	})
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
