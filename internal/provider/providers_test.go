package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	apperrors "telecare-backend/pkg/errors"
)

func TestMeetingProvider_CreateMeetingParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meetings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"meeting_id": "m-1",
			"media_region": "us-east-1",
			"media_placement": {
				"signaling_url": "wss://signal",
				"audio_host_url": "https://audio",
				"audio_fallback_url": "https://audio-fb",
				"turn_control_url": "https://turn",
				"screen_data_url": "wss://screen"
			}
		}`))
	}))
	defer server.Close()

	p := NewHTTPMeetingProvider(server.URL, time.Second)
	sess, err := p.CreateMeeting(context.Background(), uuid.New().String(), "us-east-1")

	assert.NoError(t, err)
	assert.Equal(t, "m-1", sess.SessionID)
	assert.Equal(t, "us-east-1", sess.Region)
	assert.True(t, sess.Endpoints.Complete())
}

func TestMeetingProvider_ServerErrorIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blew up", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewHTTPMeetingProvider(server.URL, time.Second)
	_, err := p.CreateAttendee(context.Background(), "m-1", uuid.New())

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetwork))
}

func TestMeetingProvider_RejectionIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "meeting no longer exists", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewHTTPMeetingProvider(server.URL, time.Second)
	_, err := p.CreateAttendee(context.Background(), "m-gone", uuid.New())

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProvider))
}

func TestMeetingProvider_BreakerRejectsAfterConsecutiveOutages(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPMeetingProvider(server.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, err := p.CreateAttendee(context.Background(), "m-1", uuid.New())
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetwork))
	}
	assert.Equal(t, int64(5), atomic.LoadInt64(&hits))

	// The breaker is open now: the next call is rejected without a request.
	_, err := p.CreateAttendee(context.Background(), "m-1", uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetwork))
	assert.Equal(t, int64(5), atomic.LoadInt64(&hits))
}

func TestChannelProvider_ServerErrorIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blew up", http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewHTTPChannelProvider(server.URL, time.Second)
	_, err := p.SendChannelMessage(context.Background(), "arn:channel/c1", uuid.New().String(), "hello")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetwork))
}

func TestChannelProvider_RejectionIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sender is not a channel member", http.StatusForbidden)
	}))
	defer server.Close()

	p := NewHTTPChannelProvider(server.URL, time.Second)
	_, err := p.SendChannelMessage(context.Background(), "arn:channel/c1", uuid.New().String(), "hello")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProvider))
}

func TestChannelProvider_ListMessagesParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages": [{"message_id": "r1", "sender_arn": "s1", "content": "hi", "created_at": "2026-08-23T10:00:00Z"}]}`))
	}))
	defer server.Close()

	p := NewHTTPChannelProvider(server.URL, time.Second)
	messages, err := p.ListChannelMessages(context.Background(), "arn:channel/c1", time.Now().Add(-time.Minute))

	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "r1", messages[0].MessageID)
	assert.Equal(t, "hi", messages[0].Content)
}
