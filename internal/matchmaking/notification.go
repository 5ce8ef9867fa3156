package matchmaking

import "encoding/json"

// Event names the outbound notification kinds the coordinator emits.
type Event string

const (
	EventPeerMatch   Event = "peerMatch"
	EventSearching   Event = "searching"
	EventChatEnded   Event = "chatEnded"
	EventPartnerLeft Event = "partnerLeft"
)

// Notification is a directed message the transport layer must deliver to To.
// Transition functions return these instead of writing to connections, so
// the state machine can be driven without a live transport.
type Notification struct {
	To    ConnID
	Event Event

	// Set on peerMatch.
	SessionID string
	PeerID    ConnID
	Address   string

	// Set on relayed negotiation payloads.
	From    ConnID
	Payload json.RawMessage
}
