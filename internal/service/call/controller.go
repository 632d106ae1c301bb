package call

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

// SessionNegotiator obtains join credentials for an appointment
type SessionNegotiator interface {
	ObtainSession(ctx context.Context, appointmentID, callerID uuid.UUID) (*domain.SessionCredentials, error)
}

// MediaControl is the provider-side control surface for local media toggles
// and leaving the session
type MediaControl interface {
	SetMuted(ctx context.Context, sessionID, participantID string, muted bool) error
	SetVideo(ctx context.Context, sessionID, participantID string, enabled bool) error
	Leave(ctx context.Context, sessionID, participantID string) error
}

// Observer receives state snapshots after every transition
type Observer func(state domain.CallState)

// Controller owns the lifecycle state of one call. All state changes flow
// through the Reduce function; the controller serializes events, enforces the
// liveness flag so nothing mutates state after Close, and fans snapshots out
// to observers.
type Controller struct {
	CallID        uuid.UUID
	AppointmentID uuid.UUID
	CallerID      uuid.UUID

	negotiator SessionNegotiator
	media      MediaControl
	metrics    *metrics.Metrics

	mu        sync.Mutex
	state     domain.CallState
	creds     *domain.SessionCredentials
	closed    bool
	observers map[int]Observer
	nextObsID int
}

// NewController creates a controller in the initializing state
func NewController(appointmentID, callerID uuid.UUID, negotiator SessionNegotiator, media MediaControl, m *metrics.Metrics) *Controller {
	c := &Controller{
		CallID:        uuid.New(),
		AppointmentID: appointmentID,
		CallerID:      callerID,
		negotiator:    negotiator,
		media:         media,
		metrics:       m,
		state:         domain.NewCallState(),
		observers:     make(map[int]Observer),
	}
	if m != nil {
		m.CallStarted()
	}
	return c
}

// Start runs authorization and session negotiation, driving the state through
// authorizing and connecting. Any error lands the call in the terminal error
// state with the message preserved verbatim, and is also returned.
func (c *Controller) Start(ctx context.Context) (*domain.SessionCredentials, error) {
	c.dispatch(Event{Type: EventAuthorizing})

	creds, err := c.negotiator.ObtainSession(ctx, c.AppointmentID, c.CallerID)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()

	// Authorization is part of ObtainSession; reaching here means both
	// checks passed.
	c.dispatch(Event{Type: EventAuthorized})
	c.dispatch(Event{Type: EventSessionStarted, RemotePresent: false})

	return creds, nil
}

// HandleEvent feeds a provider event (presence, tile bind/unbind, stop) into
// the state machine. Events after Close are dropped.
func (c *Controller) HandleEvent(event Event) {
	c.dispatch(event)
}

// State returns a snapshot of the current call state
func (c *Controller) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credentials returns the negotiated join credentials, or nil before
// negotiation completed
func (c *Controller) Credentials() *domain.SessionCredentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// ToggleMute flips the local mute flag and tells the provider. The provider
// call is fire-and-forget: a failure is logged but the local flag is not
// rolled back.
func (c *Controller) ToggleMute(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed {
		muted := c.state.Muted
		c.mu.Unlock()
		return muted
	}
	c.state.Muted = !c.state.Muted
	muted := c.state.Muted
	creds := c.creds
	c.mu.Unlock()

	if creds != nil {
		if err := c.media.SetMuted(ctx, creds.Session.SessionID, creds.Participant.ParticipantID, muted); err != nil {
			logger.Warn("mute toggle failed provider-side, local flag kept",
				zap.String("call_id", c.CallID.String()), zap.Error(err))
		}
	}
	return muted
}

// ToggleVideo flips the local video flag; same fire-and-forget contract as
// ToggleMute.
func (c *Controller) ToggleVideo(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed {
		on := c.state.VideoOn
		c.mu.Unlock()
		return on
	}
	c.state.VideoOn = !c.state.VideoOn
	on := c.state.VideoOn
	creds := c.creds
	c.mu.Unlock()

	if creds != nil {
		if err := c.media.SetVideo(ctx, creds.Session.SessionID, creds.Participant.ParticipantID, on); err != nil {
			logger.Warn("video toggle failed provider-side, local flag kept",
				zap.String("call_id", c.CallID.String()), zap.Error(err))
		}
	}
	return on
}

// HangUp disconnects the call locally and tells the provider to drop the
// participant
func (c *Controller) HangUp(ctx context.Context) {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	c.dispatch(Event{Type: EventHangUp})

	if creds != nil {
		if err := c.media.Leave(ctx, creds.Session.SessionID, creds.Participant.ParticipantID); err != nil {
			logger.Warn("provider leave failed on hang-up",
				zap.String("call_id", c.CallID.String()), zap.Error(err))
		}
	}
}

// Subscribe registers an observer and returns its deregistration function.
// The observer is called synchronously after every transition.
func (c *Controller) Subscribe(obs Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = obs
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Close marks the controller dead: observers are deregistered and any event
// arriving afterwards is dropped rather than mutating discarded state
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.observers = make(map[int]Observer)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallEnded()
	}
}

func (c *Controller) fail(err error) {
	if c.metrics != nil {
		c.metrics.RecordCallFailure(string(apperrors.CodeOf(err)))
	}
	c.dispatch(Event{Type: EventFailure, Message: err.Error()})
}

func (c *Controller) dispatch(event Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	prev := c.state
	next := Reduce(prev, event)
	c.state = next

	var observers []Observer
	if next != prev {
		observers = make([]Observer, 0, len(c.observers))
		for _, obs := range c.observers {
			observers = append(observers, obs)
		}
	}
	c.mu.Unlock()

	if next.Status != prev.Status && c.metrics != nil {
		c.metrics.RecordCallTransition(string(prev.Status), string(next.Status))
	}
	for _, obs := range observers {
		obs(next)
	}
}
