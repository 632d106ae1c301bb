package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
	"telecare-backend/pkg/push"
)

// TokenStore holds registered device tokens per user
type TokenStore interface {
	Store(ctx context.Context, token *push.Token) error
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*push.Token, error)
	Delete(ctx context.Context, userID uuid.UUID, tokenStr string) error
}

// RingService notifies the other party of an appointment that a call has
// started. Ringing is best-effort: the call proceeds whether or not the
// callee's devices could be reached.
type RingService struct {
	provider push.Provider
	tokens   TokenStore
	metrics  *metrics.Metrics
}

// NewRingService creates a ring service
func NewRingService(provider push.Provider, tokens TokenStore, m *metrics.Metrics) *RingService {
	return &RingService{provider: provider, tokens: tokens, metrics: m}
}

// RingPeer pushes an incoming-call notification to every registered device
// of the appointment party that is not the caller
func (s *RingService) RingPeer(ctx context.Context, appointment *domain.Appointment, callerID, callID uuid.UUID) {
	calleeID := appointment.OtherParty(callerID)
	if calleeID == uuid.Nil {
		return
	}

	tokens, err := s.tokens.GetByUser(ctx, calleeID)
	if err != nil {
		logger.Warn("callee token lookup failed, call proceeds unrung",
			zap.String("appointment_id", appointment.AppointmentID.String()),
			zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		logger.Debug("callee has no registered devices",
			zap.String("callee_id", calleeID.String()))
		return
	}

	notification := &push.Notification{
		Title:    "Incoming Call",
		Body:     "Your appointment call is starting",
		Priority: "high",
		Sound:    "ringtone",
		Category: "incoming_call",
		Data: map[string]string{
			"type":           "incoming_call",
			"call_id":        callID.String(),
			"appointment_id": appointment.AppointmentID.String(),
			"caller_id":      callerID.String(),
		},
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	result, err := s.provider.Send(ctx, notification, tokenStrings)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordPushNotification(s.provider.Name(), "error")
		}
		logger.Warn("ring notification send failed",
			zap.String("callee_id", calleeID.String()),
			zap.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordPushNotification(s.provider.Name(), "sent")
	}
	logger.Info("ring notification sent",
		zap.String("callee_id", calleeID.String()),
		zap.Int("delivered", result.SuccessCount),
		zap.Int("failed", result.FailureCount))

	// Providers report permanently dead tokens; drop them so the next ring
	// does not retry them.
	for _, invalid := range result.InvalidTokens {
		if err := s.tokens.Delete(ctx, calleeID, invalid); err != nil {
			logger.Warn("failed to drop invalid device token", zap.Error(err))
		}
	}
}

// RegisterDevice stores a device token for the user, replacing any prior
// registration of the same token string
func (s *RingService) RegisterDevice(ctx context.Context, userID uuid.UUID, tokenStr string, tokenType push.TokenType, platform string) (*push.Token, error) {
	if tokenStr == "" {
		return nil, apperrors.ValidationError("device token must not be empty")
	}
	switch tokenType {
	case push.TokenTypeFCM, push.TokenTypeAPNs:
	default:
		return nil, apperrors.ValidationError("unsupported token type")
	}

	now := time.Now().Unix()
	token := &push.Token{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     tokenStr,
		Type:      tokenType,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tokens.Store(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// UnregisterDevice removes a device token for the user
func (s *RingService) UnregisterDevice(ctx context.Context, userID uuid.UUID, tokenStr string) error {
	if tokenStr == "" {
		return apperrors.ValidationError("device token must not be empty")
	}
	return s.tokens.Delete(ctx, userID, tokenStr)
}
