package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/provider"
	redisrepo "telecare-backend/internal/repository/redis"
	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

// AppointmentReader looks up appointments for authorization checks
type AppointmentReader interface {
	GetByID(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error)
}

// DescriptorStore persists session descriptors keyed by appointment
type DescriptorStore interface {
	Get(ctx context.Context, appointmentID uuid.UUID) (*domain.Session, error)
	Store(ctx context.Context, appointmentID uuid.UUID, session *domain.Session) error
}

// Negotiator obtains or reuses a meeting session for an appointment and
// issues a participant credential for the caller.
type Negotiator struct {
	appointments AppointmentReader
	descriptors  DescriptorStore
	meetings     provider.MeetingProvider
	region       string
	metrics      *metrics.Metrics
}

// NewNegotiator creates a session negotiator
func NewNegotiator(
	appointments AppointmentReader,
	descriptors DescriptorStore,
	meetings provider.MeetingProvider,
	region string,
	m *metrics.Metrics,
) *Negotiator {
	return &Negotiator{
		appointments: appointments,
		descriptors:  descriptors,
		meetings:     meetings,
		region:       region,
		metrics:      m,
	}
}

// ObtainSession returns join credentials for the caller's appointment.
//
// A previously stored session descriptor is reused when it is well-formed and
// the provider still accepts attendee creation against it; otherwise a new
// session is created and stored. The descriptor write is best-effort: the
// session already exists provider-side, so a failed write is logged as a
// persistence error and does not abort call setup.
func (n *Negotiator) ObtainSession(ctx context.Context, appointmentID, callerID uuid.UUID) (*domain.SessionCredentials, error) {
	apt, err := n.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !apt.IsParty(callerID) {
		return nil, apperrors.AuthorizationError("caller is not a party to this appointment")
	}

	// Try the stored session first.
	stored, err := n.descriptors.Get(ctx, appointmentID)
	if err == nil && stored.Endpoints.Complete() {
		participant, attendeeErr := n.meetings.CreateAttendee(ctx, stored.SessionID, callerID)
		if attendeeErr == nil {
			if n.metrics != nil {
				n.metrics.RecordSessionNegotiated("reused")
			}
			return &domain.SessionCredentials{
				Session:     stored,
				Participant: participant,
				Reused:      true,
			}, nil
		}
		// Transport failures are surfaced: the stored session may be fine and
		// the caller can retry. Provider rejections mean the session is gone
		// or stale, so fall through and provision a new one.
		if apperrors.IsCode(attendeeErr, apperrors.ErrCodeNetwork) {
			return nil, attendeeErr
		}
		logger.Warn("stored session unusable, creating a new one",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("session_id", stored.SessionID),
			zap.Error(attendeeErr))
		if n.metrics != nil {
			n.metrics.RecordSessionFallback()
		}
	} else if err != nil && !errors.Is(err, redisrepo.ErrDescriptorNotFound) {
		// Malformed or unreadable descriptor: log and fall through to
		// creating a fresh session.
		logger.Warn("failed to load stored session descriptor",
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}

	sess, err := n.meetings.CreateMeeting(ctx, appointmentID.String(), n.region)
	if err != nil {
		return nil, err
	}
	if !sess.Endpoints.Complete() {
		return nil, apperrors.ConfigurationError("meeting provider returned an incomplete session descriptor")
	}

	// Best-effort persistence; the session was already created successfully.
	if storeErr := n.descriptors.Store(ctx, appointmentID, sess); storeErr != nil {
		persistErr := apperrors.PersistenceError("failed to store session descriptor", storeErr)
		logger.Error("session descriptor write failed",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("session_id", sess.SessionID),
			zap.Error(persistErr))
	}

	participant, err := n.meetings.CreateAttendee(ctx, sess.SessionID, callerID)
	if err != nil {
		return nil, err
	}

	if n.metrics != nil {
		n.metrics.RecordSessionNegotiated("created")
	}
	return &domain.SessionCredentials{
		Session:     sess,
		Participant: participant,
		Reused:      false,
	}, nil
}
