package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SpandanM110/Chatroom/internal/client"
	"github.com/SpandanM110/Chatroom/internal/peer"
	"github.com/SpandanM110/Chatroom/internal/signaling"
)

const welcomeTimeout = 10 * time.Second

// ReasonConnectionLost is reported when the direct link drops before the
// server says the chat is over.
const ReasonConnectionLost = "connectionLost"

// Signaler sends messages to the signaling server.
type Signaler interface {
	SendMessage(msg *signaling.Message) error
}

// Conversation is the direct link to a matched partner.
type Conversation interface {
	Start() error
	HandleSignal(typ string, payload json.RawMessage) error
	Say(text string) (peer.ChatMessage, error)
	Messages() <-chan peer.ChatMessage
	Hello() <-chan peer.HelloPayload
	Open() <-chan struct{}
	Closed() <-chan struct{}
	Close() error
}

// PeerFactory creates a Conversation for a new match.
type PeerFactory func(offerer bool, signal peer.SignalFunc) (Conversation, error)

type command struct {
	kind string
	text string
}

const (
	cmdJoin  = "join"
	cmdNext  = "next"
	cmdEnd   = "end"
	cmdLeave = "leave"
	cmdSay   = "say"
)

// Session drives one user's trip through the matchmaking server: joining the
// queue, talking to partners and moving on to the next one. All state is
// owned by the Run goroutine.
type Session struct {
	signaler Signaler
	handler  *client.Handler
	newPeer  PeerFactory
	address  string
	log      *slog.Logger

	commands chan command
	events   chan Event
	done     chan struct{}

	self    string
	partner string
	conv    Conversation
}

// NewSession wires a session to a connected signaling client.
func NewSession(s Signaler, h *client.Handler, newPeer PeerFactory, address string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		signaler: s,
		handler:  h,
		newPeer:  newPeer,
		address:  address,
		log:      log,
		commands: make(chan command, 8),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
}

// Events delivers everything the user should see. It is closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Join puts the user back in the queue after Leave.
func (s *Session) Join() { s.do(command{kind: cmdJoin}) }

// Next drops the current partner and looks for another.
func (s *Session) Next() { s.do(command{kind: cmdNext}) }

// End finishes the current chat.
func (s *Session) End() { s.do(command{kind: cmdEnd}) }

// Leave stops looking for partners.
func (s *Session) Leave() { s.do(command{kind: cmdLeave}) }

// Say sends text to the current partner.
func (s *Session) Say(text string) { s.do(command{kind: cmdSay, text: text}) }

// do hands c to Run. Commands issued after Run returns are ignored.
func (s *Session) do(c command) {
	select {
	case s.commands <- c:
	case <-s.done:
	}
}

// Run waits for the server greeting, joins the queue and then processes
// server messages, partner traffic and user commands until ctx ends or the
// server goes away.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer close(s.events)
	defer s.closePeer()

	select {
	case id := <-s.handler.Welcome:
		s.self = id
		s.emit(Event{Kind: EventConnected, PeerID: id})
	case <-s.handler.Done:
		return client.WrapError("await welcome", client.ErrServerGone, "")
	case <-time.After(welcomeTimeout):
		return client.WrapError("await welcome", client.ErrTimeout, "no welcome from server")
	case <-ctx.Done():
		return nil
	}

	if err := s.join(); err != nil {
		return err
	}

	for {
		var msgs <-chan peer.ChatMessage
		var hello <-chan peer.HelloPayload
		var open, closed <-chan struct{}
		if s.conv != nil {
			msgs, hello, open, closed = s.conv.Messages(), s.conv.Hello(), s.conv.Open(), s.conv.Closed()
		}

		select {
		case <-ctx.Done():
			_ = s.signaler.SendMessage(&signaling.Message{Type: signaling.MessageTypeLeave})
			return nil

		case <-s.handler.Done:
			s.emit(Event{Kind: EventDisconnected})
			return client.NewError("session", client.ErrServerGone)

		case u := <-s.handler.Updates:
			s.onUpdate(u)

		case <-open:
			s.emit(Event{Kind: EventChannelOpen, PeerID: s.partner})
			// Report once; the channel stays closed.
			s.conv = &opened{s.conv}

		case h := <-hello:
			s.emit(Event{Kind: EventPartnerHello, PeerID: s.partner, Text: describe(h)})

		case m := <-msgs:
			s.emit(Event{Kind: EventMessage, PeerID: s.partner, Text: m.Text, Time: m.Time()})

		case <-closed:
			s.log.Debug("Direct connection closed", "partner", s.partner)
			s.closePeer()
			s.emit(Event{Kind: EventEnded, Text: ReasonConnectionLost})

		case c := <-s.commands:
			if err := s.handle(c); err != nil {
				s.emit(Event{Kind: EventError, Err: err})
			}
		}
	}
}

func (s *Session) handle(c command) error {
	switch c.kind {
	case cmdJoin:
		return s.join()
	case cmdNext:
		s.closePeer()
		return s.signaler.SendMessage(&signaling.Message{Type: signaling.MessageTypeNext})
	case cmdEnd:
		s.closePeer()
		return s.signaler.SendMessage(&signaling.Message{Type: signaling.MessageTypeEndChat})
	case cmdLeave:
		s.closePeer()
		if err := s.signaler.SendMessage(&signaling.Message{Type: signaling.MessageTypeLeave}); err != nil {
			return err
		}
		s.emit(Event{Kind: EventIdle})
		return nil
	case cmdSay:
		if s.conv == nil {
			return peer.ErrChannelNotOpen
		}
		m, err := s.conv.Say(c.text)
		if err != nil {
			return err
		}
		s.emit(Event{Kind: EventMessage, Text: m.Text, Time: m.Time(), Mine: true})
		return nil
	default:
		return fmt.Errorf("unknown command %q", c.kind)
	}
}

func (s *Session) onUpdate(u *client.Update) {
	switch {
	case u.Match != nil:
		s.onMatch(u.Match)

	case u.Signal != nil:
		if s.conv == nil || u.Signal.From != s.partner {
			s.log.Debug("Dropping stale signal", "type", u.Signal.Type, "from", u.Signal.From)
			return
		}
		if err := s.conv.HandleSignal(u.Signal.Type, u.Signal.Payload); err != nil {
			s.emit(Event{Kind: EventError, Err: err})
		}

	case u.Type == signaling.MessageTypeError:
		s.emit(Event{Kind: EventError, Err: client.WrapError("server", client.ErrSignalingError, u.Error)})

	case u.Type == signaling.MessageTypeSearching:
		s.closePeer()
		s.emit(Event{Kind: EventSearching})

	default:
		s.closePeer()
		s.emit(Event{Kind: EventEnded, Text: u.Type})
	}
}

func (s *Session) join() error {
	return s.signaler.SendMessage(&signaling.Message{Type: signaling.MessageTypeJoin, Address: s.address})
}

func (s *Session) onMatch(m *client.Match) {
	s.closePeer()
	s.partner = m.PeerID
	s.emit(Event{Kind: EventMatched, PeerID: m.PeerID, Address: m.Address, SessionID: m.SessionID})

	to := m.PeerID
	conv, err := s.newPeer(peer.IsOfferer(s.self, to), func(typ string, payload json.RawMessage) error {
		return s.signaler.SendMessage(&signaling.Message{Type: typ, To: to, Payload: payload})
	})
	if err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return
	}
	s.conv = conv
	if err := conv.Start(); err != nil {
		s.emit(Event{Kind: EventError, Err: err})
	}
}

func (s *Session) closePeer() {
	if s.conv == nil {
		return
	}
	if err := s.conv.Close(); err != nil {
		s.log.Debug("Closing peer", "error", err)
	}
	s.conv = nil
	s.partner = ""
}

// emit never blocks the session; a UI that stops reading loses events.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warn("Dropping chat event", "kind", e.Kind.String())
	}
}

func describe(h peer.HelloPayload) string {
	if h.Version == "" {
		return h.Client
	}
	return h.Client + " " + h.Version
}

// opened hides the open signal after it has been reported.
type opened struct {
	Conversation
}

func (opened) Open() <-chan struct{} { return nil }
