package push

import (
	"context"

	"github.com/google/uuid"
)

// Provider defines the interface for sending push notifications
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Send delivers a notification to the given device tokens
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Notification represents a push notification payload
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Token represents a registered device token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// MockProvider is a no-op provider used in development and tests
type MockProvider struct {
	Sent []*Notification
}

// NewMockProvider creates a mock push provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name implements Provider
func (m *MockProvider) Name() string { return "mock" }

// Send records the notification and reports every token as delivered
func (m *MockProvider) Send(_ context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.Sent = append(m.Sent, notification)
	return &SendResult{SuccessCount: len(tokens)}, nil
}
