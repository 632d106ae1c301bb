package call

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"telecare-backend/internal/domain"
	"telecare-backend/pkg/metrics"
)

// AppointmentReader looks up appointments
type AppointmentReader interface {
	GetByID(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error)
}

// Ringer notifies the other appointment party that a call has started
type Ringer interface {
	RingPeer(ctx context.Context, appointment *domain.Appointment, callerID, callID uuid.UUID)
}

// Manager tracks the active call controllers of this service instance. One
// appointment has at most one active controller here; there is no distributed
// lock across instances, so two instances can in principle hold connections
// for the same appointment. Known gap, accepted for now.
type Manager struct {
	negotiator   SessionNegotiator
	media        MediaControl
	appointments AppointmentReader
	ringer       Ringer
	metrics      *metrics.Metrics

	mu            sync.Mutex
	byCall        map[uuid.UUID]*Controller
	byAppointment map[uuid.UUID]*Controller
}

// NewManager creates a call manager. ringer may be nil when push delivery is
// not configured.
func NewManager(negotiator SessionNegotiator, media MediaControl, appointments AppointmentReader, ringer Ringer, m *metrics.Metrics) *Manager {
	return &Manager{
		negotiator:    negotiator,
		media:         media,
		appointments:  appointments,
		ringer:        ringer,
		metrics:       m,
		byCall:        make(map[uuid.UUID]*Controller),
		byAppointment: make(map[uuid.UUID]*Controller),
	}
}

// StartCall creates a controller for the appointment and runs its setup. If
// this instance already has an active controller for the appointment, it is
// closed and replaced: the session descriptor is shared, so the new call
// reuses the same remote session where possible.
func (m *Manager) StartCall(ctx context.Context, appointmentID, callerID uuid.UUID) (*Controller, error) {
	c := NewController(appointmentID, callerID, m.negotiator, m.media, m.metrics)

	m.mu.Lock()
	if prev, ok := m.byAppointment[appointmentID]; ok {
		delete(m.byCall, prev.CallID)
		prev.Close()
	}
	m.byCall[c.CallID] = c
	m.byAppointment[appointmentID] = c
	m.mu.Unlock()

	if _, err := c.Start(ctx); err != nil {
		// The controller stays registered in its terminal error state so the
		// client can read the failure; it is discarded on EndCall.
		return c, err
	}

	if m.ringer != nil && m.appointments != nil {
		// Ring outside the request path; a slow push gateway must not delay
		// the caller's join.
		go m.ring(context.WithoutCancel(ctx), c)
	}
	return c, nil
}

func (m *Manager) ring(ctx context.Context, c *Controller) {
	appointment, err := m.appointments.GetByID(ctx, c.AppointmentID)
	if err != nil {
		return
	}
	m.ringer.RingPeer(ctx, appointment, c.CallerID, c.CallID)
}

// Get returns the controller for a call ID
func (m *Manager) Get(callID uuid.UUID) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCall[callID]
	return c, ok
}

// EndCall hangs up and discards the controller
func (m *Manager) EndCall(ctx context.Context, callID uuid.UUID) bool {
	m.mu.Lock()
	c, ok := m.byCall[callID]
	if ok {
		delete(m.byCall, callID)
		if m.byAppointment[c.AppointmentID] == c {
			delete(m.byAppointment, c.AppointmentID)
		}
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	c.HangUp(ctx)
	c.Close()
	return true
}
