package domain

import (
	"time"

	"github.com/google/uuid"
)

// MediaEndpoints is the set of connection endpoints a meeting session exposes.
// All fields are required; a descriptor missing any of them is unusable and
// indicates a provider-side misconfiguration.
type MediaEndpoints struct {
	SignalingURL     string `json:"signaling_url"`
	AudioHostURL     string `json:"audio_host_url"`
	AudioFallbackURL string `json:"audio_fallback_url"`
	TurnControlURL   string `json:"turn_control_url"`
	ScreenDataURL    string `json:"screen_data_url"`
}

// Complete reports whether every required endpoint field is present
func (e *MediaEndpoints) Complete() bool {
	return e.SignalingURL != "" &&
		e.AudioHostURL != "" &&
		e.AudioFallbackURL != "" &&
		e.TurnControlURL != "" &&
		e.ScreenDataURL != ""
}

// Session represents a remote real-time meeting instance. One session may be
// reused across reconnect attempts for the same appointment.
type Session struct {
	SessionID string         `json:"session_id"`
	Region    string         `json:"region"`
	Endpoints MediaEndpoints `json:"endpoints"`
	Status    string         `json:"status"` // active, ended
	CreatedAt time.Time      `json:"created_at"`
}

// Participant is a per-user, per-session join credential. Discarded when the
// session ends.
type Participant struct {
	ParticipantID  string    `json:"participant_id"`
	JoinToken      string    `json:"join_token"`
	ExternalUserID uuid.UUID `json:"external_user_id"`
}

// SessionCredentials is everything a client needs to join a negotiated session
type SessionCredentials struct {
	Session     *Session     `json:"session"`
	Participant *Participant `json:"participant"`
	Reused      bool         `json:"reused"` // true when the stored session was reused
}
