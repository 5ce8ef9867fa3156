package client

import (
	"encoding/json"

	"github.com/SpandanM110/Chatroom/internal/signaling"
)

// Match describes the partner the server paired us with.
type Match struct {
	PeerID    string
	Address   string
	SessionID string
}

// Signal is a negotiation payload relayed from the partner.
type Signal struct {
	Type    string
	From    string
	Payload json.RawMessage
}

// Update is one server event after the greeting. Exactly one of Match,
// Signal or Error is set, or none for searching, chatEnded and partnerLeft.
type Update struct {
	Type   string
	Match  *Match
	Signal *Signal
	Error  string
}

// Handler routes incoming signaling messages to appropriate channels.
// Updates keeps server order: a partner's offer never overtakes the match
// that introduced them.
type Handler struct {
	incoming <-chan *signaling.Message

	Welcome chan string
	Updates chan *Update

	// Done is closed when the server connection is gone.
	Done chan struct{}
}

// NewHandler creates a new message handler reading from incoming.
func NewHandler(incoming <-chan *signaling.Message) *Handler {
	return &Handler{
		incoming: incoming,
		Welcome:  make(chan string, 1),
		Updates:  make(chan *Update, 64),
		Done:     make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the incoming channel is closed.
func (h *Handler) Start() {
	defer close(h.Done)

	for msg := range h.incoming {
		switch msg.Type {
		case signaling.MessageTypeWelcome:
			select {
			case h.Welcome <- msg.PeerID:
			default:
			}

		case signaling.MessageTypePeerMatch:
			h.Updates <- &Update{Type: msg.Type, Match: &Match{
				PeerID:    msg.PeerID,
				Address:   msg.Address,
				SessionID: msg.SessionID,
			}}

		case signaling.MessageTypeSearching, signaling.MessageTypeChatEnded, signaling.MessageTypePartnerLeft:
			h.Updates <- &Update{Type: msg.Type}

		case signaling.MessageTypeError:
			h.Updates <- &Update{Type: msg.Type, Error: msg.Error}

		default:
			if signaling.IsRelayType(msg.Type) {
				h.Updates <- &Update{Type: msg.Type, Signal: &Signal{
					Type:    msg.Type,
					From:    msg.From,
					Payload: msg.Payload,
				}}
			}
		}
	}
}
