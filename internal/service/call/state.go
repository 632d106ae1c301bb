package call

import (
	"github.com/google/uuid"

	"telecare-backend/internal/domain"
)

// EventType identifies a call lifecycle event
type EventType string

const (
	// EventAuthorizing: the authorization check against the appointment began
	EventAuthorizing EventType = "authorizing"
	// EventAuthorized: the caller was confirmed as a party to the appointment
	EventAuthorized EventType = "authorized"
	// EventSessionStarted: session negotiation and provider start succeeded
	EventSessionStarted EventType = "session-started"
	// EventPeerPresence: the provider reported the remote party joining or leaving
	EventPeerPresence EventType = "peer-presence"
	// EventTileBound: a remote video tile was bound
	EventTileBound EventType = "tile-bound"
	// EventTileRemoved: a remote video tile was unbound
	EventTileRemoved EventType = "tile-removed"
	// EventProviderStopped: the provider signalled the session stopped
	EventProviderStopped EventType = "provider-stopped"
	// EventHangUp: explicit local hang-up
	EventHangUp EventType = "hang-up"
	// EventFailure: any step failed; Message carries the error verbatim
	EventFailure EventType = "failure"
)

// Event is a call lifecycle event consumed by the reducer
type Event struct {
	Type EventType

	// ParticipantID identifies the remote party for presence/tile events
	ParticipantID uuid.UUID

	// Present is the presence flag for EventPeerPresence
	Present bool

	// RemotePresent reports, for EventSessionStarted, whether a remote party
	// was already in the session when the start call settled
	RemotePresent bool

	// Message is the verbatim error text for EventFailure
	Message string
}

// Reduce computes the next call state from the current state and one event.
// It is a pure function: every transition of the call lifecycle is enumerated
// here and nowhere else.
//
// Presence and tile events may arrive in any order relative to session start.
// They are absorbed into PeerPresent/RemoteParticipantID even while the state
// cannot yet show them (initializing/authorizing/connecting), and the
// connected vs waiting-for-peer decision is re-derived when the session start
// lands. Events after a terminal state are ignored.
func Reduce(state domain.CallState, event Event) domain.CallState {
	// Failure wins from any non-terminal state.
	if event.Type == EventFailure {
		if state.Terminal() {
			return state
		}
		state.Status = domain.CallError
		state.ErrorMessage = event.Message
		return state
	}

	if state.Terminal() {
		return state
	}

	switch event.Type {
	case EventAuthorizing:
		if state.Status == domain.CallInitializing {
			state.Status = domain.CallAuthorizing
		}

	case EventAuthorized:
		// Session negotiation starts immediately after authorization.
		if state.Status == domain.CallAuthorizing {
			state.Status = domain.CallConnecting
		}

	case EventSessionStarted:
		if state.Status != domain.CallConnecting {
			return state
		}
		// Combine the synchronous start result with any presence signal that
		// raced ahead of it.
		if event.RemotePresent {
			state.PeerPresent = true
		}
		if state.PeerPresent {
			state.Status = domain.CallConnected
		} else {
			state.Status = domain.CallWaitingForPeer
		}

	case EventPeerPresence:
		state.PeerPresent = event.Present
		if event.Present {
			if event.ParticipantID != uuid.Nil {
				state.RemoteParticipantID = event.ParticipantID
			}
		} else if state.RemoteParticipantID == event.ParticipantID || event.ParticipantID == uuid.Nil {
			state.RemoteParticipantID = uuid.Nil
		}
		state = deriveConnection(state)

	case EventTileBound:
		// 1:1 model: only the most recently bound tile's identity is kept.
		// If a third party ever joins, earlier identities are overwritten.
		state.PeerPresent = true
		state.RemoteParticipantID = event.ParticipantID
		state = deriveConnection(state)

	case EventTileRemoved:
		if state.RemoteParticipantID == event.ParticipantID {
			state.PeerPresent = false
			state.RemoteParticipantID = uuid.Nil
		}
		state = deriveConnection(state)

	case EventProviderStopped, EventHangUp:
		state.Status = domain.CallDisconnected
		state.PeerPresent = false
		state.RemoteParticipantID = uuid.Nil
	}

	return state
}

// deriveConnection maps the tracked presence onto connected/waiting-for-peer,
// but only once the session has started; earlier states keep their status and
// just remember the presence for later.
func deriveConnection(state domain.CallState) domain.CallState {
	if state.Status != domain.CallConnected && state.Status != domain.CallWaitingForPeer {
		return state
	}
	if state.PeerPresent {
		state.Status = domain.CallConnected
	} else {
		state.Status = domain.CallWaitingForPeer
	}
	return state
}
