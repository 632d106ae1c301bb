package call

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"telecare-backend/internal/domain"
)

func reduceAll(state domain.CallState, events ...Event) domain.CallState {
	for _, e := range events {
		state = Reduce(state, e)
	}
	return state
}

func TestReduce_HappyPathToWaiting(t *testing.T) {
	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted, RemotePresent: false},
	)

	assert.Equal(t, domain.CallWaitingForPeer, state.Status)
	assert.False(t, state.PeerPresent)
}

func TestReduce_HappyPathToConnected(t *testing.T) {
	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted, RemotePresent: true},
	)

	assert.Equal(t, domain.CallConnected, state.Status)
	assert.True(t, state.PeerPresent)
}

func TestReduce_PresenceBeforeSessionStartIsBuffered(t *testing.T) {
	peer := uuid.New()

	// Presence arrives while still connecting; the status must not jump
	// ahead, but the signal must not be lost either.
	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventPeerPresence, ParticipantID: peer, Present: true},
	)
	assert.Equal(t, domain.CallConnecting, state.Status)
	assert.True(t, state.PeerPresent)

	state = Reduce(state, Event{Type: EventSessionStarted, RemotePresent: false})
	assert.Equal(t, domain.CallConnected, state.Status)
	assert.Equal(t, peer, state.RemoteParticipantID)
}

func TestReduce_TileBeforeSessionStartIsBuffered(t *testing.T) {
	peer := uuid.New()

	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventTileBound, ParticipantID: peer},
		Event{Type: EventSessionStarted, RemotePresent: false},
	)

	assert.Equal(t, domain.CallConnected, state.Status)
	assert.Equal(t, peer, state.RemoteParticipantID)
}

func TestReduce_PeerLeavesAndRejoins(t *testing.T) {
	peer := uuid.New()

	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted, RemotePresent: true},
		Event{Type: EventPeerPresence, ParticipantID: peer, Present: false},
	)
	assert.Equal(t, domain.CallWaitingForPeer, state.Status)
	assert.Equal(t, uuid.Nil, state.RemoteParticipantID)

	state = Reduce(state, Event{Type: EventPeerPresence, ParticipantID: peer, Present: true})
	assert.Equal(t, domain.CallConnected, state.Status)
	assert.Equal(t, peer, state.RemoteParticipantID)
}

func TestReduce_TileRemovedForOtherParticipantIgnored(t *testing.T) {
	peer := uuid.New()
	other := uuid.New()

	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted, RemotePresent: false},
		Event{Type: EventTileBound, ParticipantID: peer},
		Event{Type: EventTileRemoved, ParticipantID: other},
	)

	assert.Equal(t, domain.CallConnected, state.Status)
	assert.Equal(t, peer, state.RemoteParticipantID)
}

func TestReduce_FailureWinsFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range [][]Event{
		{},
		{{Type: EventAuthorizing}},
		{{Type: EventAuthorizing}, {Type: EventAuthorized}},
		{{Type: EventAuthorizing}, {Type: EventAuthorized}, {Type: EventSessionStarted}},
	} {
		state := reduceAll(domain.NewCallState(), setup...)
		state = Reduce(state, Event{Type: EventFailure, Message: "session create failed"})

		assert.Equal(t, domain.CallError, state.Status)
		assert.Equal(t, "session create failed", state.ErrorMessage)
	}
}

func TestReduce_TerminalStatesIgnoreEverything(t *testing.T) {
	disconnected := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted},
		Event{Type: EventHangUp},
	)
	assert.Equal(t, domain.CallDisconnected, disconnected.Status)

	after := reduceAll(disconnected,
		Event{Type: EventPeerPresence, ParticipantID: uuid.New(), Present: true},
		Event{Type: EventTileBound, ParticipantID: uuid.New()},
		Event{Type: EventFailure, Message: "late failure"},
	)
	assert.Equal(t, disconnected, after)
}

func TestReduce_ProviderStoppedDisconnects(t *testing.T) {
	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted, RemotePresent: true},
		Event{Type: EventProviderStopped},
	)

	assert.Equal(t, domain.CallDisconnected, state.Status)
	assert.False(t, state.PeerPresent)
	assert.Equal(t, uuid.Nil, state.RemoteParticipantID)
}

func TestReduce_SessionStartedOnlyFromConnecting(t *testing.T) {
	state := Reduce(domain.NewCallState(), Event{Type: EventSessionStarted, RemotePresent: true})
	assert.Equal(t, domain.CallInitializing, state.Status)
}

func TestReduce_MostRecentTileWins(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	state := reduceAll(domain.NewCallState(),
		Event{Type: EventAuthorizing},
		Event{Type: EventAuthorized},
		Event{Type: EventSessionStarted},
		Event{Type: EventTileBound, ParticipantID: first},
		Event{Type: EventTileBound, ParticipantID: second},
	)

	assert.Equal(t, second, state.RemoteParticipantID)
}
