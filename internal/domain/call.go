package domain

import (
	"github.com/google/uuid"
)

// CallStatus is the lifecycle status of a call as tracked by the call
// controller. Error is terminal until the caller discards the controller and
// starts over.
type CallStatus string

const (
	CallInitializing   CallStatus = "initializing"
	CallAuthorizing    CallStatus = "authorizing"
	CallConnecting     CallStatus = "connecting"
	CallConnected      CallStatus = "connected"
	CallWaitingForPeer CallStatus = "waiting-for-peer"
	CallDisconnected   CallStatus = "disconnected"
	CallError          CallStatus = "error"
)

// CallState is the full call-lifecycle state. It is mutated only by the call
// reducer in response to events; handlers and clients read snapshots.
type CallState struct {
	Status       CallStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// RemoteParticipantID is the identity currently bound to remote video.
	// The call model is 1:1: only the most recently bound identity is kept.
	RemoteParticipantID uuid.UUID `json:"remote_participant_id,omitempty"`

	// Local media toggles. Held locally and not rolled back when the
	// provider call behind the toggle fails.
	Muted   bool `json:"muted"`
	VideoOn bool `json:"video_on"`

	// peerPresent records the last presence signal observed, including
	// signals that arrived before the session finished connecting. It lets
	// the reducer re-derive connected vs waiting-for-peer once the session
	// start lands, so early events are never lost.
	PeerPresent bool `json:"peer_present"`
}

// NewCallState returns the initial state for a fresh call
func NewCallState() CallState {
	return CallState{Status: CallInitializing, VideoOn: true}
}

// Terminal reports whether the state accepts no further lifecycle events
func (s CallState) Terminal() bool {
	return s.Status == CallDisconnected || s.Status == CallError
}
