package signaling

import "encoding/json"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type      string          `json:"type"`
	Address   string          `json:"address,omitempty"`
	PeerID    string          `json:"peer_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Inbound message types.
const (
	MessageTypeJoin      = "join"
	MessageTypeJoinQueue = "joinQueue"
	MessageTypeAddress   = "address"
	MessageTypeEndChat   = "endChat"
	MessageTypeNext      = "next"
	MessageTypeLeave     = "leave"
)

// Negotiation payloads, relayed in both directions without inspection.
const (
	MessageTypeOffer     = "offer"
	MessageTypeAnswer    = "answer"
	MessageTypeCandidate = "candidate"
	MessageTypeSignal    = "signal"
)

// Outbound message types.
const (
	MessageTypeWelcome     = "welcome"
	MessageTypePeerMatch   = "peerMatch"
	MessageTypeSearching   = "searching"
	MessageTypeChatEnded   = "chatEnded"
	MessageTypePartnerLeft = "partnerLeft"
	MessageTypeError       = "error"
)

// IsRelayType reports whether t is forwarded verbatim to another client.
func IsRelayType(t string) bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate, MessageTypeSignal:
		return true
	}
	return false
}

func errorMessage(text string) *Message {
	return &Message{Type: MessageTypeError, Error: text}
}
