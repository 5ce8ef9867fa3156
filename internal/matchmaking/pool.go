package matchmaking

import (
	"sort"
	"time"
)

// WaitingEntry is a client currently seeking a partner.
type WaitingEntry struct {
	ID         ConnID
	Address    string
	EnqueuedAt time.Time
}

// Pool is the set of waiting clients, keyed by connection id so an id can
// appear at most once.
type Pool struct {
	entries map[ConnID]WaitingEntry
}

// NewPool creates an empty waiting pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[ConnID]WaitingEntry)}
}

// Add inserts e, replacing any existing entry for the same id.
func (p *Pool) Add(e WaitingEntry) {
	p.entries[e.ID] = e
}

// Remove deletes the entry for id and reports whether it was present.
func (p *Pool) Remove(id ConnID) bool {
	if _, ok := p.entries[id]; !ok {
		return false
	}
	delete(p.entries, id)
	return true
}

// SetAddress refreshes the address carried by a waiting entry.
func (p *Pool) SetAddress(id ConnID, addr string) {
	if e, ok := p.entries[id]; ok {
		e.Address = addr
		p.entries[id] = e
	}
}

func (p *Pool) Get(id ConnID) (WaitingEntry, bool) {
	e, ok := p.entries[id]
	return e, ok
}

func (p *Pool) Contains(id ConnID) bool {
	_, ok := p.entries[id]
	return ok
}

func (p *Pool) Len() int {
	return len(p.entries)
}

// Entries returns a snapshot ordered by arrival time, oldest first. Ties are
// broken by id so the order is deterministic.
func (p *Pool) Entries() []WaitingEntry {
	out := make([]WaitingEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
