package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/service/call"
	"telecare-backend/pkg/response"
)

// Handler handles call lifecycle HTTP requests
type Handler struct {
	calls *call.Manager
}

// NewHandler creates a new call handler
func NewHandler(calls *call.Manager) *Handler {
	return &Handler{calls: calls}
}

// StartCallRequest represents a call start request
type StartCallRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required,uuid"`
}

// CallResponse is the call state readback shape
type CallResponse struct {
	CallID        string                     `json:"call_id"`
	AppointmentID string                     `json:"appointment_id"`
	State         domain.CallState           `json:"state"`
	Credentials   *domain.SessionCredentials `json:"credentials,omitempty"`
}

// StartCall starts (or restarts) the call for an appointment
// POST /v1/calls
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		response.ValidationError(c, "Invalid appointment ID")
		return
	}

	controller, err := h.calls.StartCall(c.Request.Context(), appointmentID, callerID)
	if err != nil {
		// The controller carries the terminal error state; surface the error
		// code, the client can still read the state back by call ID.
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, toResponse(controller, true))
}

// GetCall returns the current state of a call
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	controller, ok := h.ownedCall(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, toResponse(controller, false))
}

// EndCall hangs up and discards the call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	controller, ok := h.ownedCall(c)
	if !ok {
		return
	}

	h.calls.EndCall(c.Request.Context(), controller.CallID)
	response.Success(c, http.StatusOK, gin.H{
		"message": "Call ended",
		"call_id": controller.CallID,
	})
}

// ToggleMute flips the caller's mute flag
// POST /v1/calls/:id/mute
func (h *Handler) ToggleMute(c *gin.Context) {
	controller, ok := h.ownedCall(c)
	if !ok {
		return
	}

	muted := controller.ToggleMute(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{"muted": muted})
}

// ToggleVideo flips the caller's video flag
// POST /v1/calls/:id/video
func (h *Handler) ToggleVideo(c *gin.Context) {
	controller, ok := h.ownedCall(c)
	if !ok {
		return
	}

	videoOn := controller.ToggleVideo(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{"video_on": videoOn})
}

// ownedCall resolves the :id param to a controller owned by the caller
func (h *Handler) ownedCall(c *gin.Context) (*call.Controller, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return nil, false
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}

	controller, found := h.calls.Get(callID)
	if !found {
		response.NotFound(c, "Call not found")
		return nil, false
	}
	if controller.CallerID != callerID {
		response.Forbidden(c, "Call belongs to another user")
		return nil, false
	}
	return controller, true
}

func toResponse(controller *call.Controller, includeCredentials bool) CallResponse {
	resp := CallResponse{
		CallID:        controller.CallID.String(),
		AppointmentID: controller.AppointmentID.String(),
		State:         controller.State(),
	}
	if includeCredentials {
		resp.Credentials = controller.Credentials()
	}
	return resp
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
