package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SpandanM110/Chatroom/internal/matchmaking"
)

// ErrHubStopped is returned by requests made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Hub is the central brain of the signaling server. Its Run loop is the
// single goroutine that owns the matchmaking coordinator; every connect,
// message and disconnect is serialized through its channels.
type Hub struct {
	coord   *matchmaking.Coordinator
	clients map[matchmaking.ConnID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	stats      chan chan Stats

	// done is closed when Run returns so pumps never block on a dead hub.
	done chan struct{}

	maxClients int
	log        *slog.Logger
}

// Stats extends the coordinator view with transport counters.
type Stats struct {
	matchmaking.Stats
	Clients int   `json:"clients"`
	Dropped int64 `json:"dropped"`
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMaxClients caps concurrently registered connections. Zero means no cap.
func WithMaxClients(n int) HubOption {
	return func(h *Hub) { h.maxClients = n }
}

func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// NewHub creates a new Hub around coord.
func NewHub(coord *matchmaking.Coordinator, opts ...HubOption) *Hub {
	h := &Hub{
		coord:      coord,
		clients:    make(map[matchmaking.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register hands a freshly accepted client to the hub. It reports false if
// the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave queues c for removal. Unknown or already removed clients are ignored.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) inbound(m *Message) bool {
	select {
	case h.broadcast <- m:
		return true
	case <-h.done:
		return false
	}
}

// Stats asks the hub loop for a consistent snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Run starts the hub's main processing loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for id, c := range h.clients {
			close(c.Send)
			delete(h.clients, id)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Hub stopping", "clients", len(h.clients))
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			if h.clients[client.ID] != client {
				// Rejected at registration or already kicked.
				continue
			}
			h.log.Info("Client unregistered", "conn", client.ID, "remote", remoteAddr(client))
			h.dispatch(h.drop(client))

		case message := <-h.broadcast:
			h.handleMessage(message)

		case reply := <-h.stats:
			reply <- h.snapshot()
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.log.Warn("Rejecting client: server full", "conn", c.ID, "clients", len(h.clients))
		h.send(c, errorMessage("server full"))
		close(c.Send)
		return
	}
	if _, dup := h.clients[c.ID]; dup || !h.coord.Connect(c.ID) {
		h.send(c, errorMessage("duplicate connection id"))
		close(c.Send)
		return
	}

	h.clients[c.ID] = c
	h.log.Info("Client registered", "conn", c.ID, "remote", remoteAddr(c))
	h.send(c, &Message{Type: MessageTypeWelcome, PeerID: string(c.ID)})
}

func (h *Hub) handleMessage(m *Message) {
	c := m.client
	if c == nil || h.clients[c.ID] != c {
		return
	}
	h.log.Debug("Message received", "type", m.Type, "conn", c.ID)

	var out []matchmaking.Notification
	switch m.Type {
	case MessageTypeJoin, MessageTypeJoinQueue:
		out = h.coord.Join(c.ID, m.Address)

	case MessageTypeAddress:
		h.coord.SetAddress(c.ID, m.Address)

	case MessageTypeEndChat:
		out = h.coord.EndChat(c.ID)

	case MessageTypeNext:
		out = h.coord.Next(c.ID)

	case MessageTypeLeave:
		out = h.coord.Leave(c.ID)

	case MessageTypeError:
		h.send(c, errorMessage(m.Error))

	default:
		if IsRelayType(m.Type) {
			out = h.coord.Relay(c.ID, matchmaking.ConnID(m.To), matchmaking.Event(m.Type), m.Payload)
			break
		}
		h.log.Debug("Unknown message type", "type", m.Type, "conn", c.ID)
		h.send(c, errorMessage("unknown message type: "+m.Type))
	}

	h.dispatch(out)
}

// dispatch delivers notifications in order. A client whose queue is full is
// disconnected, and the notifications that produces are delivered too.
func (h *Hub) dispatch(out []matchmaking.Notification) {
	for len(out) > 0 {
		n := out[0]
		out = out[1:]

		c, ok := h.clients[n.To]
		if !ok {
			continue
		}
		if !h.send(c, toMessage(n)) {
			h.log.Warn("Send buffer full, disconnecting client", "conn", c.ID, "event", n.Event)
			out = append(out, h.drop(c)...)
		}
	}
}

// send enqueues m without blocking the hub.
func (h *Hub) send(c *Client, m *Message) bool {
	select {
	case c.Send <- m:
		return true
	default:
		c.drops.Add(1)
		return false
	}
}

// drop removes c from the hub and the coordinator and closes its queue.
func (h *Hub) drop(c *Client) []matchmaking.Notification {
	delete(h.clients, c.ID)
	close(c.Send)
	return h.coord.Disconnect(c.ID)
}

func (h *Hub) snapshot() Stats {
	s := Stats{Stats: h.coord.Stats(), Clients: len(h.clients)}
	for _, c := range h.clients {
		s.Dropped += c.Drops()
	}
	return s
}

func toMessage(n matchmaking.Notification) *Message {
	return &Message{
		Type:      string(n.Event),
		Address:   n.Address,
		PeerID:    string(n.PeerID),
		SessionID: n.SessionID,
		From:      string(n.From),
		Payload:   n.Payload,
	}
}

func remoteAddr(c *Client) string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}
