package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"telecare-backend/internal/domain"
	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/push"
)

// Mocks
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Store(ctx context.Context, token *push.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) GetByUser(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*push.Token), args.Error(1)
}

func (m *MockTokenStore) Delete(ctx context.Context, userID uuid.UUID, tokenStr string) error {
	args := m.Called(ctx, userID, tokenStr)
	return args.Error(0)
}

func ringAppointment(patientID, providerID uuid.UUID) *domain.Appointment {
	return &domain.Appointment{
		AppointmentID: uuid.New(),
		PatientID:     patientID,
		ProviderID:    providerID,
		Status:        "scheduled",
		ScheduledAt:   time.Now(),
	}
}

func TestRingPeer_NotifiesOtherParty(t *testing.T) {
	patientID := uuid.New()
	providerID := uuid.New()
	apt := ringAppointment(patientID, providerID)
	callID := uuid.New()

	provider := push.NewMockProvider()
	tokens := new(MockTokenStore)
	tokens.On("GetByUser", mock.Anything, providerID).Return([]*push.Token{
		{ID: uuid.New(), UserID: providerID, Token: "device-1", Type: push.TokenTypeFCM},
	}, nil)

	s := NewRingService(provider, tokens, nil)
	s.RingPeer(context.Background(), apt, patientID, callID)

	assert.Len(t, provider.Sent, 1)
	sent := provider.Sent[0]
	assert.Equal(t, "Incoming Call", sent.Title)
	assert.Equal(t, callID.String(), sent.Data["call_id"])
	assert.Equal(t, patientID.String(), sent.Data["caller_id"])
}

func TestRingPeer_NoDevicesIsSilent(t *testing.T) {
	patientID := uuid.New()
	providerID := uuid.New()
	apt := ringAppointment(patientID, providerID)

	provider := push.NewMockProvider()
	tokens := new(MockTokenStore)
	tokens.On("GetByUser", mock.Anything, providerID).Return([]*push.Token{}, nil)

	s := NewRingService(provider, tokens, nil)
	s.RingPeer(context.Background(), apt, patientID, uuid.New())

	assert.Empty(t, provider.Sent)
}

func TestRingPeer_CallerNotPartyIsIgnored(t *testing.T) {
	apt := ringAppointment(uuid.New(), uuid.New())

	provider := push.NewMockProvider()
	tokens := new(MockTokenStore)

	s := NewRingService(provider, tokens, nil)
	s.RingPeer(context.Background(), apt, uuid.New(), uuid.New())

	assert.Empty(t, provider.Sent)
	tokens.AssertNotCalled(t, "GetByUser", mock.Anything, mock.Anything)
}

func TestRegisterDevice_ValidatesInput(t *testing.T) {
	tokens := new(MockTokenStore)
	s := NewRingService(push.NewMockProvider(), tokens, nil)
	userID := uuid.New()

	_, err := s.RegisterDevice(context.Background(), userID, "", push.TokenTypeFCM, "android")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = s.RegisterDevice(context.Background(), userID, "device-1", "carrier-pigeon", "android")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestRegisterDevice_StoresToken(t *testing.T) {
	tokens := new(MockTokenStore)
	tokens.On("Store", mock.Anything, mock.Anything).Return(nil)

	s := NewRingService(push.NewMockProvider(), tokens, nil)
	userID := uuid.New()

	token, err := s.RegisterDevice(context.Background(), userID, "device-1", push.TokenTypeAPNs, "ios")

	assert.NoError(t, err)
	assert.Equal(t, userID, token.UserID)
	assert.Equal(t, push.TokenTypeAPNs, token.Type)
	tokens.AssertCalled(t, "Store", mock.Anything, mock.Anything)
}
