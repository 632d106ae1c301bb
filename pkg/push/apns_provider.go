package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"telecare-backend/pkg/logger"
)

// APNsProvider implements Provider for Apple Push Notification Service
type APNsProvider struct {
	client   *apns2.Client
	bundleID string
}

// APNsConfig contains configuration for the APNs provider (token-based auth)
type APNsConfig struct {
	KeyPath    string // Path to .p8 private key file
	KeyID      string // 10-character Key ID from Apple Developer Portal
	TeamID     string // 10-character Team ID from Apple Developer Portal
	BundleID   string // Bundle ID of the app
	Production bool   // Use production APNs endpoint instead of sandbox
}

// NewAPNsProvider creates a new APNs provider
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil || config.BundleID == "" {
		return nil, fmt.Errorf("APNs bundle ID is required")
	}
	if config.KeyPath == "" || config.KeyID == "" || config.TeamID == "" {
		return nil, fmt.Errorf("APNs key path, key ID, and team ID are required")
	}

	authKey, err := token.AuthKeyFromFile(config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   config.KeyID,
		TeamID:  config.TeamID,
	})
	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("bundle_id", config.BundleID),
		zap.Bool("production", config.Production))

	return &APNsProvider{client: client, bundleID: config.BundleID}, nil
}

// Name implements Provider
func (a *APNsProvider) Name() string { return "apns" }

// Send implements Provider for APNs. Tokens are pushed one at a time; APNs
// has no multicast API.
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	p := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body)
	if notification.Sound != "" {
		p = p.Sound(notification.Sound)
	}
	if notification.Category != "" {
		p = p.Category(notification.Category)
	}
	for k, v := range notification.Data {
		p = p.Custom(k, v)
	}

	for _, deviceToken := range tokens {
		n := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     p,
		}
		if notification.Priority == "high" {
			n.Priority = apns2.PriorityHigh
		}

		resp, err := a.client.PushWithContext(ctx, n)
		if err != nil {
			result.FailureCount++
			continue
		}
		switch {
		case resp.Sent():
			result.SuccessCount++
		case resp.StatusCode == http.StatusGone || resp.Reason == apns2.ReasonBadDeviceToken:
			result.FailureCount++
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		default:
			result.FailureCount++
		}
	}

	return result, nil
}
