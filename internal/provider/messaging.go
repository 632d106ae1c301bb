package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"telecare-backend/pkg/errors"
	"telecare-backend/pkg/resilience"
)

// ChannelMessage is a message as reported by the messaging provider
type ChannelMessage struct {
	MessageID string    `json:"message_id"`
	SenderARN string    `json:"sender_arn"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelProvider is the remote messaging backend. A Conversation references
// exactly one channel.
type ChannelProvider interface {
	// CreateChannel provisions a remote channel owned by ownerARN with the
	// given members. Returns the channel ARN.
	CreateChannel(ctx context.Context, name string, ownerARN string, memberARNs []string) (string, error)

	// SendChannelMessage delivers content to the channel on behalf of
	// senderARN. Returns the provider-assigned message ID.
	SendChannelMessage(ctx context.Context, channelARN, senderARN, content string) (string, error)

	// ListChannelMessages returns channel messages created at or after since,
	// oldest first.
	ListChannelMessages(ctx context.Context, channelARN string, since time.Time) ([]ChannelMessage, error)
}

// HTTPChannelProvider talks to a REST messaging control plane
type HTTPChannelProvider struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
}

// NewHTTPChannelProvider creates a messaging provider client
func NewHTTPChannelProvider(baseURL string, timeout time.Duration) *HTTPChannelProvider {
	return &HTTPChannelProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker("messaging", 5, 30*time.Second),
	}
}

type createChannelRequest struct {
	Name       string   `json:"name"`
	OwnerARN   string   `json:"owner_arn"`
	MemberARNs []string `json:"member_arns"`
}

type createChannelResponse struct {
	ChannelARN string `json:"channel_arn"`
}

// CreateChannel provisions a remote channel
func (p *HTTPChannelProvider) CreateChannel(ctx context.Context, name string, ownerARN string, memberARNs []string) (string, error) {
	var out createChannelResponse
	err := p.do(ctx, http.MethodPost, "/channels", createChannelRequest{
		Name:       name,
		OwnerARN:   ownerARN,
		MemberARNs: memberARNs,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ChannelARN, nil
}

type sendMessageRequest struct {
	SenderARN string `json:"sender_arn"`
	Content   string `json:"content"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
}

// SendChannelMessage delivers a message to a channel
func (p *HTTPChannelProvider) SendChannelMessage(ctx context.Context, channelARN, senderARN, content string) (string, error) {
	var out sendMessageResponse
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelARN))
	err := p.do(ctx, http.MethodPost, path, sendMessageRequest{
		SenderARN: senderARN,
		Content:   content,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.MessageID, nil
}

type listMessagesResponse struct {
	Messages []ChannelMessage `json:"messages"`
}

// ListChannelMessages fetches channel messages created at or after since
func (p *HTTPChannelProvider) ListChannelMessages(ctx context.Context, channelARN string, since time.Time) ([]ChannelMessage, error) {
	var out listMessagesResponse
	path := fmt.Sprintf("/channels/%s/messages?since=%s",
		url.PathEscape(channelARN), url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (p *HTTPChannelProvider) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to encode provider request", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to build provider request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
			return fmt.Errorf("messaging provider returned %d", resp.StatusCode)
		}
		return nil
	})
	if resp == nil {
		return errors.NetworkError("messaging provider unreachable", execErr)
	}
	defer resp.Body.Close()

	// A 5xx is a transient provider outage, retryable like a transport
	// failure; only 4xx rejections are provider errors.
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NetworkError(
			fmt.Sprintf("messaging provider failed on %s: status %d: %s", path, resp.StatusCode, msg), execErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.ProviderError(
			fmt.Sprintf("messaging provider rejected %s: status %d: %s", path, resp.StatusCode, msg), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ProviderError("failed to decode messaging provider response", err)
	}
	return nil
}
