package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"telecare-backend/internal/domain"
	"telecare-backend/pkg/errors"
	"telecare-backend/pkg/resilience"
)

// MeetingProvider is the session/participant control plane. Implementations
// are opaque: any backend offering these two operations can be substituted.
type MeetingProvider interface {
	// CreateMeeting provisions a new remote session for the given external
	// identifier (the appointment ID) in the given media region.
	CreateMeeting(ctx context.Context, externalID string, region string) (*domain.Session, error)

	// CreateAttendee issues a join credential for userID against an existing
	// session. Fails if the session no longer exists provider-side.
	CreateAttendee(ctx context.Context, sessionID string, userID uuid.UUID) (*domain.Participant, error)
}

// HTTPMeetingProvider talks to a REST meeting control plane
type HTTPMeetingProvider struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
}

// NewHTTPMeetingProvider creates a meeting provider client
func NewHTTPMeetingProvider(baseURL string, timeout time.Duration) *HTTPMeetingProvider {
	return &HTTPMeetingProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker("meeting", 5, 30*time.Second),
	}
}

type createMeetingRequest struct {
	ExternalID  string `json:"external_id"`
	MediaRegion string `json:"media_region"`
}

type createMeetingResponse struct {
	MeetingID   string                `json:"meeting_id"`
	MediaRegion string                `json:"media_region"`
	Endpoints   domain.MediaEndpoints `json:"media_placement"`
}

// CreateMeeting provisions a new session via the control plane
func (p *HTTPMeetingProvider) CreateMeeting(ctx context.Context, externalID string, region string) (*domain.Session, error) {
	var out createMeetingResponse
	err := p.post(ctx, "/meetings", createMeetingRequest{
		ExternalID:  externalID,
		MediaRegion: region,
	}, &out)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		SessionID: out.MeetingID,
		Region:    out.MediaRegion,
		Endpoints: out.Endpoints,
		Status:    "active",
		CreatedAt: time.Now(),
	}, nil
}

type createAttendeeRequest struct {
	ExternalUserID string `json:"external_user_id"`
}

type createAttendeeResponse struct {
	AttendeeID string `json:"attendee_id"`
	JoinToken  string `json:"join_token"`
}

// CreateAttendee issues a join credential against an existing session
func (p *HTTPMeetingProvider) CreateAttendee(ctx context.Context, sessionID string, userID uuid.UUID) (*domain.Participant, error) {
	var out createAttendeeResponse
	path := fmt.Sprintf("/meetings/%s/attendees", sessionID)
	err := p.post(ctx, path, createAttendeeRequest{ExternalUserID: userID.String()}, &out)
	if err != nil {
		return nil, err
	}

	return &domain.Participant{
		ParticipantID:  out.AttendeeID,
		JoinToken:      out.JoinToken,
		ExternalUserID: userID,
	}, nil
}

type mediaToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetMuted toggles the participant's audio provider-side
func (p *HTTPMeetingProvider) SetMuted(ctx context.Context, sessionID, participantID string, muted bool) error {
	path := fmt.Sprintf("/meetings/%s/attendees/%s/mute", sessionID, participantID)
	return p.post(ctx, path, mediaToggleRequest{Enabled: muted}, nil)
}

// SetVideo toggles the participant's video provider-side
func (p *HTTPMeetingProvider) SetVideo(ctx context.Context, sessionID, participantID string, enabled bool) error {
	path := fmt.Sprintf("/meetings/%s/attendees/%s/video", sessionID, participantID)
	return p.post(ctx, path, mediaToggleRequest{Enabled: enabled}, nil)
}

// Leave removes the participant from the session
func (p *HTTPMeetingProvider) Leave(ctx context.Context, sessionID, participantID string) error {
	path := fmt.Sprintf("/meetings/%s/attendees/%s/leave", sessionID, participantID)
	return p.post(ctx, path, struct{}{}, nil)
}

func (p *HTTPMeetingProvider) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Transport failures and 5xx responses trip the breaker; 4xx responses
	// do not, they are the provider telling us something specific.
	var resp *http.Response
	execErr := p.breaker.Execute(func() error {
		var doErr error
		resp, doErr = p.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("meeting provider returned %d", resp.StatusCode)
		}
		return nil
	})
	if resp == nil {
		return errors.NetworkError("meeting provider unreachable", execErr)
	}
	defer resp.Body.Close()

	// A 5xx is a transient provider outage, retryable like a transport
	// failure; only 4xx rejections are provider errors.
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NetworkError(
			fmt.Sprintf("meeting provider failed on %s: status %d: %s", path, resp.StatusCode, msg), execErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.ProviderError(
			fmt.Sprintf("meeting provider rejected %s: status %d: %s", path, resp.StatusCode, msg), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.ProviderError("failed to decode meeting provider response", err)
		}
	}
	return nil
}
