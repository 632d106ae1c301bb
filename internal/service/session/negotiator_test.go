package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"telecare-backend/internal/domain"
	redisrepo "telecare-backend/internal/repository/redis"
	apperrors "telecare-backend/pkg/errors"
)

// Mocks
type MockAppointmentReader struct {
	mock.Mock
}

func (m *MockAppointmentReader) GetByID(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

type MockDescriptorStore struct {
	mock.Mock
}

func (m *MockDescriptorStore) Get(ctx context.Context, appointmentID uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockDescriptorStore) Store(ctx context.Context, appointmentID uuid.UUID, session *domain.Session) error {
	args := m.Called(ctx, appointmentID, session)
	return args.Error(0)
}

type MockMeetingProvider struct {
	mock.Mock
}

func (m *MockMeetingProvider) CreateMeeting(ctx context.Context, externalID string, region string) (*domain.Session, error) {
	args := m.Called(ctx, externalID, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockMeetingProvider) CreateAttendee(ctx context.Context, sessionID string, userID uuid.UUID) (*domain.Participant, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Participant), args.Error(1)
}

func completeSession(id string) *domain.Session {
	return &domain.Session{
		SessionID: id,
		Region:    "us-east-1",
		Endpoints: domain.MediaEndpoints{
			SignalingURL:     "wss://signal.example.com",
			AudioHostURL:     "audio.example.com:3478",
			AudioFallbackURL: "audio-fallback.example.com:443",
			TurnControlURL:   "https://turn.example.com",
			ScreenDataURL:    "wss://screen.example.com",
		},
		Status:    "active",
		CreatedAt: time.Now(),
	}
}

func testAppointment(patientID, providerID uuid.UUID) *domain.Appointment {
	return &domain.Appointment{
		AppointmentID: uuid.New(),
		PatientID:     patientID,
		ProviderID:    providerID,
		Status:        "scheduled",
		ScheduledAt:   time.Now().Add(time.Hour),
	}
}

func TestObtainSession_ReusesStoredSession(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())
	stored := completeSession("session-1")

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(stored, nil)
	meetings.On("CreateAttendee", mock.Anything, "session-1", patientID).
		Return(&domain.Participant{ParticipantID: "att-1", JoinToken: "tok", ExternalUserID: patientID}, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.NoError(t, err)
	assert.True(t, creds.Reused)
	assert.Equal(t, "session-1", creds.Session.SessionID)
	assert.Equal(t, "att-1", creds.Participant.ParticipantID)
	meetings.AssertNotCalled(t, "CreateMeeting", mock.Anything, mock.Anything, mock.Anything)
}

func TestObtainSession_FallsBackWhenStoredSessionRejected(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())
	stored := completeSession("stale-session")
	fresh := completeSession("fresh-session")

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(stored, nil)
	meetings.On("CreateAttendee", mock.Anything, "stale-session", patientID).
		Return(nil, apperrors.ProviderError("meeting not found", nil))
	meetings.On("CreateMeeting", mock.Anything, apt.AppointmentID.String(), "us-east-1").Return(fresh, nil)
	descriptors.On("Store", mock.Anything, apt.AppointmentID, fresh).Return(nil)
	meetings.On("CreateAttendee", mock.Anything, "fresh-session", patientID).
		Return(&domain.Participant{ParticipantID: "att-2", JoinToken: "tok", ExternalUserID: patientID}, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.NoError(t, err)
	assert.False(t, creds.Reused)
	assert.Equal(t, "fresh-session", creds.Session.SessionID)
	descriptors.AssertCalled(t, "Store", mock.Anything, apt.AppointmentID, fresh)
}

func TestObtainSession_SurfacesNetworkErrorOnStoredSession(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())
	stored := completeSession("session-1")

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(stored, nil)
	meetings.On("CreateAttendee", mock.Anything, "session-1", patientID).
		Return(nil, apperrors.NetworkError("provider unreachable", errors.New("dial timeout")))

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.Nil(t, creds)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNetwork))
	// A transport failure must not provision a replacement session.
	meetings.AssertNotCalled(t, "CreateMeeting", mock.Anything, mock.Anything, mock.Anything)
}

func TestObtainSession_RejectsNonParty(t *testing.T) {
	apt := testAppointment(uuid.New(), uuid.New())
	stranger := uuid.New()

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, stranger)

	assert.Nil(t, creds)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAuthorization))
	descriptors.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestObtainSession_ConfigurationErrorOnIncompleteEndpoints(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())

	incomplete := completeSession("partial")
	incomplete.Endpoints.TurnControlURL = ""

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(nil, redisrepo.ErrDescriptorNotFound)
	meetings.On("CreateMeeting", mock.Anything, apt.AppointmentID.String(), "us-east-1").Return(incomplete, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.Nil(t, creds)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
	descriptors.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
}

func TestObtainSession_DescriptorWriteFailureDoesNotBlockCall(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())
	fresh := completeSession("fresh-session")

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(nil, redisrepo.ErrDescriptorNotFound)
	meetings.On("CreateMeeting", mock.Anything, apt.AppointmentID.String(), "us-east-1").Return(fresh, nil)
	descriptors.On("Store", mock.Anything, apt.AppointmentID, fresh).Return(errors.New("redis down"))
	meetings.On("CreateAttendee", mock.Anything, "fresh-session", patientID).
		Return(&domain.Participant{ParticipantID: "att-1", JoinToken: "tok", ExternalUserID: patientID}, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.NoError(t, err)
	assert.NotNil(t, creds)
	assert.False(t, creds.Reused)
}

func TestObtainSession_IncompleteStoredDescriptorTriggersNewSession(t *testing.T) {
	patientID := uuid.New()
	apt := testAppointment(patientID, uuid.New())

	stored := completeSession("half-written")
	stored.Endpoints.SignalingURL = ""
	fresh := completeSession("fresh-session")

	appointments := new(MockAppointmentReader)
	descriptors := new(MockDescriptorStore)
	meetings := new(MockMeetingProvider)

	appointments.On("GetByID", mock.Anything, apt.AppointmentID).Return(apt, nil)
	descriptors.On("Get", mock.Anything, apt.AppointmentID).Return(stored, nil)
	meetings.On("CreateMeeting", mock.Anything, apt.AppointmentID.String(), "us-east-1").Return(fresh, nil)
	descriptors.On("Store", mock.Anything, apt.AppointmentID, fresh).Return(nil)
	meetings.On("CreateAttendee", mock.Anything, "fresh-session", patientID).
		Return(&domain.Participant{ParticipantID: "att-1", JoinToken: "tok", ExternalUserID: patientID}, nil)

	n := NewNegotiator(appointments, descriptors, meetings, "us-east-1", nil)
	creds, err := n.ObtainSession(context.Background(), apt.AppointmentID, patientID)

	assert.NoError(t, err)
	assert.False(t, creds.Reused)
	// The incomplete descriptor must never be offered to the provider.
	meetings.AssertNotCalled(t, "CreateAttendee", mock.Anything, "half-written", mock.Anything)
}
