package chat

import "time"

// EventKind identifies what happened in a chat session.
type EventKind int

const (
	EventConnected EventKind = iota
	EventSearching
	EventMatched
	EventChannelOpen
	EventPartnerHello
	EventMessage
	EventEnded
	EventIdle
	EventError
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventSearching:
		return "searching"
	case EventMatched:
		return "matched"
	case EventChannelOpen:
		return "channel open"
	case EventPartnerHello:
		return "partner hello"
	case EventMessage:
		return "message"
	case EventEnded:
		return "ended"
	case EventIdle:
		return "idle"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is reported to the user interface.
type Event struct {
	Kind EventKind

	// PeerID is our own id for EventConnected and the partner's otherwise.
	PeerID    string
	Address   string
	SessionID string

	// Text holds chat text for EventMessage, the reason for EventEnded and
	// the partner's client description for EventPartnerHello.
	Text string
	Time time.Time
	// Mine marks messages typed locally.
	Mine bool

	Err error
}
