package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/SpandanM110/Chatroom/internal/version"
	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel names the data channel carrying chat traffic.
const ChannelLabel = "chat"

// SignalFunc forwards a negotiation payload to the partner through the
// signaling server.
type SignalFunc func(typ string, payload json.RawMessage) error

// Peer is one side of a direct chat with a matched partner.
type Peer struct {
	pc      *pion.PeerConnection
	dc      *pion.DataChannel
	offerer bool
	signal  SignalFunc
	log     *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit

	messages chan ChatMessage
	hello    chan HelloPayload
	open     chan struct{}
	closed   chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once
}

type settings struct {
	api *pion.API
	log *slog.Logger
}

// Option configures a Peer.
type Option func(*settings)

// WithAPI builds the peer connection from a custom pion API.
func WithAPI(api *pion.API) Option {
	return func(s *settings) { s.api = api }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// IsOfferer decides which side of a pair creates the offer. Both sides reach
// the same answer without talking to each other.
func IsOfferer(self, partner string) bool {
	return self < partner
}

// ICEConfiguration builds the pion configuration from client settings.
func ICEConfiguration(cfg *config.Config) pion.Configuration {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{URLs: turn, Username: user, Credential: pass})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || NeedsRelay()) {
		policy = pion.ICETransportPolicyRelay
	}
	return pion.Configuration{ICEServers: servers, ICETransportPolicy: policy}
}

// New creates a peer connection for a freshly matched partner. The offerer
// opens the chat channel; the other side waits for it.
func New(cfg *config.Config, offerer bool, signal SignalFunc, opts ...Option) (*Peer, error) {
	s := settings{log: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	var (
		pc  *pion.PeerConnection
		err error
	)
	if s.api != nil {
		pc, err = s.api.NewPeerConnection(ICEConfiguration(cfg))
	} else {
		pc, err = pion.NewPeerConnection(ICEConfiguration(cfg))
	}
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:       pc,
		offerer:  offerer,
		signal:   signal,
		log:      s.log,
		messages: make(chan ChatMessage, 32),
		hello:    make(chan HelloPayload, 1),
		open:     make(chan struct{}),
		closed:   make(chan struct{}),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := p.signal(signaling.MessageTypeCandidate, payload); err != nil {
			p.log.Debug("Failed to send candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug("Peer connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			p.shutdown()
		}
	})

	if offerer {
		ordered := true
		dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		p.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != ChannelLabel {
				return
			}
			p.attach(dc)
		})
	}
	return p, nil
}

// Start sends the offer when this side is the offerer.
func (p *Peer) Start() error {
	if !p.offerer {
		return nil
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	payload, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return err
	}
	return p.signal(signaling.MessageTypeOffer, payload)
}

// HandleSignal applies a relayed negotiation message from the partner.
func (p *Peer) HandleSignal(typ string, payload json.RawMessage) error {
	switch typ {
	case signaling.MessageTypeOffer:
		if p.offerer {
			return fmt.Errorf("handle offer: %w", ErrUnexpectedSignal)
		}
		var desc pion.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("parse offer: %w", err)
		}
		if err := p.setRemote(desc); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		out, err := json.Marshal(p.pc.LocalDescription())
		if err != nil {
			return err
		}
		return p.signal(signaling.MessageTypeAnswer, out)

	case signaling.MessageTypeAnswer:
		if !p.offerer {
			return fmt.Errorf("handle answer: %w", ErrUnexpectedSignal)
		}
		var desc pion.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("parse answer: %w", err)
		}
		return p.setRemote(desc)

	case signaling.MessageTypeCandidate:
		var ice pion.ICECandidateInit
		if err := json.Unmarshal(payload, &ice); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		p.mu.Lock()
		if !p.remoteSet {
			p.pending = append(p.pending, ice)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		if err := p.pc.AddICECandidate(ice); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil

	default:
		// Generic signals from browser peers carry nothing we act on.
		return nil
	}
}

// setRemote applies desc and flushes candidates that arrived before it.
func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ice := range pending {
		if err := p.pc.AddICECandidate(ice); err != nil {
			p.log.Debug("Dropping queued candidate", "error", err)
		}
	}
	return nil
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.openOnce.Do(func() { close(p.open) })
		if err := p.send(MessageTypeHello, HelloPayload{Client: "cli", Version: version.Version}); err != nil {
			p.log.Debug("Failed to send hello", "error", err)
		}
	})

	dc.OnMessage(func(raw pion.DataChannelMessage) {
		msg, err := Decode(raw.Data)
		if err != nil {
			p.log.Debug("Ignoring data channel frame", "error", err)
			return
		}
		switch msg.Type {
		case MessageTypeChat:
			var chat ChatMessage
			if err := msg.DecodePayload(&chat); err != nil {
				p.log.Debug("Bad chat payload", "error", err)
				return
			}
			select {
			case p.messages <- chat:
			case <-p.closed:
			}
		case MessageTypeHello:
			var hello HelloPayload
			if err := msg.DecodePayload(&hello); err == nil {
				select {
				case p.hello <- hello:
				default:
				}
			}
		case MessageTypeBye:
			p.shutdown()
		}
	})

	dc.OnClose(p.shutdown)
}

// WaitOpen blocks until the chat channel opens, the peer closes, or ctx ends.
func (p *Peer) WaitOpen(ctx context.Context) error {
	select {
	case <-p.open:
		return nil
	case <-p.closed:
		return ErrChannelNotOpen
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Say sends one line of chat to the partner.
func (p *Peer) Say(text string) (ChatMessage, error) {
	msg, err := NewChatMessage(text, time.Now())
	if err != nil {
		return ChatMessage{}, err
	}
	return msg, p.send(MessageTypeChat, msg)
}

func (p *Peer) send(typ string, payload any) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	msg, err := NewMessage(typ, payload)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return dc.Send(data)
}

// Messages delivers chat lines from the partner.
func (p *Peer) Messages() <-chan ChatMessage {
	return p.messages
}

// Hello delivers the partner's client description once it arrives.
func (p *Peer) Hello() <-chan HelloPayload {
	return p.hello
}

// Open is closed when the chat channel is ready.
func (p *Peer) Open() <-chan struct{} {
	return p.open
}

// Closed is closed when the direct connection is gone.
func (p *Peer) Closed() <-chan struct{} {
	return p.closed
}

// Close says goodbye to the partner and tears the connection down.
func (p *Peer) Close() error {
	_ = p.send(MessageTypeBye, nil)
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	p.shutdown()
	return p.pc.Close()
}

func (p *Peer) shutdown() {
	p.closeOnce.Do(func() { close(p.closed) })
}
