package matchmaking

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvariant is reported by Validate when the pool and session table
// disagree about a connection. It indicates a programming error.
var ErrInvariant = errors.New("matchmaking invariant violated")

// State is where a connection currently sits in the coordinator.
type State int

const (
	StateAbsent State = iota
	StateIdle
	StateWaiting
	StateInSession
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateInSession:
		return "in-session"
	}
	return "absent"
}

// Stats is a point-in-time view of coordinator load.
type Stats struct {
	Registered   int    `json:"registered"`
	Waiting      int    `json:"waiting"`
	Sessions     int    `json:"sessions"`
	MatchesTotal uint64 `json:"matches_total"`
}

// Coordinator is the matchmaking state machine. It owns the registry, the
// waiting pool and the session table and is not safe for concurrent use:
// callers must funnel every event through a single goroutine (see
// signaling.Hub).
type Coordinator struct {
	registry *Registry
	pool     *Pool
	sessions *SessionTable

	now     func() time.Time
	shuffle Shuffler
	log     *slog.Logger

	matches uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithShuffler replaces the random pairing order.
func WithShuffler(s Shuffler) Option {
	return func(c *Coordinator) { c.shuffle = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates a coordinator with empty state.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: NewRegistry(),
		pool:     NewPool(),
		sessions: NewSessionTable(),
		now:      time.Now,
		shuffle:  CryptoShuffle,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect registers a new connection. It reports false for a duplicate id.
func (c *Coordinator) Connect(id ConnID) bool {
	if !c.registry.Register(id, c.now()) {
		c.log.Warn("Duplicate connection id", "conn", id)
		return false
	}
	c.log.Debug("Client registered", "conn", id)
	return true
}

// SetAddress publishes or refreshes the external address of id.
func (c *Coordinator) SetAddress(id ConnID, addr string) {
	if !c.registry.SetAddress(id, addr) {
		c.log.Debug("Address update for unknown connection", "conn", id)
		return
	}
	c.pool.SetAddress(id, addr)
}

// Join puts id into the waiting pool. A client currently in a session
// abandons it first; its partner is told partnerLeft and re-queued.
func (c *Coordinator) Join(id ConnID, addr string) []Notification {
	if !c.registry.Contains(id) {
		c.log.Debug("Join from unknown connection", "conn", id)
		return nil
	}
	if addr != "" {
		c.SetAddress(id, addr)
	}

	var out []Notification
	if partner, ok := c.sessions.Leave(id); ok {
		c.log.Info("Session abandoned by rejoin", "conn", id, "partner", partner.ID)
		out = append(out, c.requeue(partner.ID, EventPartnerLeft)...)
	}
	out = append(out, c.enqueue(id)...)
	return append(out, c.Match()...)
}

// EndChat ends the caller's session gracefully. Both members are re-queued
// and the partner is told chatEnded.
func (c *Coordinator) EndChat(id ConnID) []Notification {
	return c.leaveAndRequeue(id, EventChatEnded)
}

// Next abandons the caller's session to look for someone else. Both members
// are re-queued and the partner is told partnerLeft.
func (c *Coordinator) Next(id ConnID) []Notification {
	return c.leaveAndRequeue(id, EventPartnerLeft)
}

// Leave withdraws id from the waiting pool. Sessions are unaffected.
func (c *Coordinator) Leave(id ConnID) []Notification {
	if c.pool.Remove(id) {
		c.log.Debug("Client left queue", "conn", id)
	}
	return nil
}

// Disconnect removes every trace of id. If it was in a session the partner
// is told partnerLeft and re-queued; a waiting client simply disappears.
// Calling it twice is harmless.
func (c *Coordinator) Disconnect(id ConnID) []Notification {
	partner, inSession := c.sessions.Leave(id)
	c.pool.Remove(id)
	c.registry.Unregister(id)
	c.log.Debug("Client unregistered", "conn", id)

	if !inSession {
		return nil
	}
	c.log.Info("Partner disconnected", "conn", id, "partner", partner.ID)
	out := c.requeue(partner.ID, EventPartnerLeft)
	return append(out, c.Match()...)
}

func (c *Coordinator) leaveAndRequeue(id ConnID, partnerEvent Event) []Notification {
	partner, ok := c.sessions.Leave(id)
	if !ok {
		c.log.Debug("Leave-session outside of a session", "conn", id, "event", partnerEvent)
		return nil
	}
	c.log.Info("Session ended", "conn", id, "partner", partner.ID, "event", partnerEvent)

	out := c.enqueue(id)
	out = append(out, c.requeue(partner.ID, partnerEvent)...)
	return append(out, c.Match()...)
}

// requeue tells a former partner why its session ended and puts it back in
// the pool.
func (c *Coordinator) requeue(id ConnID, ev Event) []Notification {
	if !c.registry.Contains(id) {
		return nil
	}
	out := []Notification{{To: id, Event: ev}}
	return append(out, c.enqueue(id)...)
}

// enqueue inserts or refreshes the waiting entry for a registered id.
func (c *Coordinator) enqueue(id ConnID) []Notification {
	cl, ok := c.registry.Lookup(id)
	if !ok {
		return nil
	}
	c.pool.Add(WaitingEntry{ID: id, Address: cl.Address, EnqueuedAt: c.now()})
	return []Notification{{To: id, Event: EventSearching}}
}

// StateOf reports where id currently is.
func (c *Coordinator) StateOf(id ConnID) State {
	switch {
	case c.sessions.Contains(id):
		return StateInSession
	case c.pool.Contains(id):
		return StateWaiting
	case c.registry.Contains(id):
		return StateIdle
	}
	return StateAbsent
}

// PartnerOf returns the current session partner of id.
func (c *Coordinator) PartnerOf(id ConnID) (Member, bool) {
	s, ok := c.sessions.Lookup(id)
	if !ok {
		return Member{}, false
	}
	return s.Partner(id)
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Registered:   c.registry.Len(),
		Waiting:      c.pool.Len(),
		Sessions:     c.sessions.Len(),
		MatchesTotal: c.matches,
	}
}

// Validate checks that every waiting or paired connection is registered,
// that nobody is both waiting and paired, and that the member index agrees
// with the session table.
func (c *Coordinator) Validate() error {
	for _, e := range c.pool.Entries() {
		if !c.registry.Contains(e.ID) {
			return fmt.Errorf("%w: waiting entry %s is not registered", ErrInvariant, e.ID)
		}
		if c.sessions.Contains(e.ID) {
			return fmt.Errorf("%w: %s is both waiting and in a session", ErrInvariant, e.ID)
		}
	}

	seen := make(map[ConnID]string)
	for _, s := range c.sessions.Sessions() {
		if s.A.ID == s.B.ID {
			return fmt.Errorf("%w: session %s pairs %s with itself", ErrInvariant, s.ID, s.A.ID)
		}
		for _, m := range []Member{s.A, s.B} {
			if prev, dup := seen[m.ID]; dup {
				return fmt.Errorf("%w: %s is in sessions %s and %s", ErrInvariant, m.ID, prev, s.ID)
			}
			seen[m.ID] = s.ID
			if !c.registry.Contains(m.ID) {
				return fmt.Errorf("%w: session %s references disconnected %s", ErrInvariant, s.ID, m.ID)
			}
			if idx, ok := c.sessions.Lookup(m.ID); !ok || idx.ID != s.ID {
				return fmt.Errorf("%w: member index out of sync for %s", ErrInvariant, m.ID)
			}
		}
	}
	if len(seen) != len(c.sessions.byMember) {
		return fmt.Errorf("%w: member index has %d entries, sessions have %d members", ErrInvariant, len(c.sessions.byMember), len(seen))
	}
	return nil
}
