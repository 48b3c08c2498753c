package transport

import (
	"errors"
	"time"

	"github.com/haivivi/rolecoach/pkg/realtime"
)

// State is the connection state of a Session.
type State int

const (
	// StateIdle holds no resources.
	StateIdle State = iota
	// StateNegotiating is fetching a credential and setting up the connection.
	StateNegotiating
	// StateActive has an open event channel.
	StateActive
	// StateClosed was stopped explicitly. All resources are released.
	StateClosed
	// StateError failed during negotiation or while active.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Live reports whether the state still holds, or is acquiring, a connection.
func (s State) Live() bool {
	return s == StateNegotiating || s == StateActive
}

// Errors reported by a Session.
var (
	// ErrCredentialUnavailable wraps token provider failures.
	ErrCredentialUnavailable = errors.New("transport: credential unavailable")

	// ErrNegotiationFailed wraps media capture and description exchange failures.
	ErrNegotiationFailed = errors.New("transport: negotiation failed")

	// ErrChannelUnavailable marks a send attempted without an open channel.
	ErrChannelUnavailable = errors.New("transport: channel unavailable")

	// ErrSessionClosed is returned by Start when Stop won the race.
	ErrSessionClosed = errors.New("transport: session closed")

	// ErrAlreadyStarted is returned by Start on a session that left Idle.
	ErrAlreadyStarted = errors.New("transport: session already started")
)

// SendStatus tells whether an event was handed to the wire.
type SendStatus int

const (
	// StatusDropped means nothing was transmitted.
	StatusDropped SendStatus = iota
	// StatusAccepted means the event was accepted for transmission.
	StatusAccepted
)

// String returns "accepted" or "dropped".
func (s SendStatus) String() string {
	if s == StatusAccepted {
		return "accepted"
	}
	return "dropped"
}

// SendResult is the outcome of Session.Send.
type SendResult struct {
	Status SendStatus

	// Event is the locally retained copy of a transmitted event, with its
	// identifier and timestamp. Zero when dropped.
	Event realtime.Event

	// Err is the reason an event was dropped.
	Err error
}

// Accepted reports whether the event was transmitted.
func (r SendResult) Accepted() bool {
	return r.Status == StatusAccepted
}

// Diagnostic records a send that did not reach the wire.
type Diagnostic struct {
	Time  time.Time
	Type  string
	State State
	Err   error
}
