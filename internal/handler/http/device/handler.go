package device

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"telecare-backend/internal/service/notification"
	"telecare-backend/pkg/push"
	"telecare-backend/pkg/response"
)

// Handler handles device token registration for call notifications
type Handler struct {
	rings *notification.RingService
}

// NewHandler creates a new device handler
func NewHandler(rings *notification.RingService) *Handler {
	return &Handler{rings: rings}
}

// RegisterRequest represents a device registration request
type RegisterRequest struct {
	Token    string `json:"token" binding:"required"`
	Type     string `json:"type" binding:"required,oneof=fcm apns"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// Register stores a device token for the caller
// POST /v1/devices
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token, err := h.rings.RegisterDevice(c.Request.Context(), userID, req.Token, push.TokenType(req.Type), req.Platform)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, token)
}

// Unregister removes a device token for the caller
// DELETE /v1/devices/:token
func (h *Handler) Unregister(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.rings.UnregisterDevice(c.Request.Context(), userID, c.Param("token")); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Device unregistered"})
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
