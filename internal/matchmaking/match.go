package matchmaking

import (
	"crypto/rand"
	"log/slog"
	"math/big"
)

// Shuffler permutes n elements using swap, in the shape of rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// CryptoShuffle is a Fisher-Yates shuffle driven by crypto/rand so pairing
// order is not predictable from the outside.
func CryptoShuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, randomIndex(i+1))
	}
}

// NoShuffle keeps arrival order, pairing the oldest entries first.
func NoShuffle(int, func(i, j int)) {}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		slog.Error("Failed to generate random index", "error", err)
		return 0
	}
	return int(n.Int64())
}

// Match pairs waiting clients until fewer than two eligible entries remain.
// Each pair leaves the pool and enters the session table in one step, and
// both members get a peerMatch carrying the other's address. With nothing
// new in the pool a second call matches nobody.
func (c *Coordinator) Match() []Notification {
	if c.pool.Len() < 2 {
		return nil
	}

	entries := c.pool.Entries()
	eligible := entries[:0]
	for _, e := range entries {
		if !c.registry.Contains(e.ID) {
			c.pool.Remove(e.ID)
			continue
		}
		eligible = append(eligible, e)
	}
	if len(eligible) < 2 {
		return nil
	}

	c.shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	var out []Notification
	for i := 0; i+1 < len(eligible); i += 2 {
		out = append(out, c.pair(eligible[i], eligible[i+1])...)
	}
	return out
}

func (c *Coordinator) pair(x, y WaitingEntry) []Notification {
	if x.ID == y.ID {
		return nil
	}

	a := c.member(x)
	b := c.member(y)
	s := &Session{
		ID:        SessionID(a.ID, b.ID),
		A:         a,
		B:         b,
		StartedAt: c.now(),
	}
	if !c.sessions.Insert(s) {
		c.log.Error("Refusing to pair connection already in a session", "a", a.ID, "b", b.ID)
		return nil
	}
	c.pool.Remove(a.ID)
	c.pool.Remove(b.ID)
	c.matches++

	c.log.Info("Matched peers", "session", s.ID, "a", a.ID, "b", b.ID)
	return []Notification{
		{To: a.ID, Event: EventPeerMatch, SessionID: s.ID, PeerID: b.ID, Address: b.Address},
		{To: b.ID, Event: EventPeerMatch, SessionID: s.ID, PeerID: a.ID, Address: a.Address},
	}
}

// member snapshots the latest known address, falling back to the one
// recorded when the entry was queued.
func (c *Coordinator) member(e WaitingEntry) Member {
	m := Member{ID: e.ID, Address: e.Address}
	if cl, ok := c.registry.Lookup(e.ID); ok && cl.Address != "" {
		m.Address = cl.Address
	}
	return m
}
