package matchmaking

import (
	"strconv"
	"time"
)

// Member is a snapshot of one session participant taken at match time.
type Member struct {
	ID      ConnID
	Address string
}

// Session is an active two-party pairing.
type Session struct {
	ID        string
	A         Member
	B         Member
	StartedAt time.Time
}

// Partner returns the member of s that is not id.
func (s *Session) Partner(id ConnID) (Member, bool) {
	switch id {
	case s.A.ID:
		return s.B, true
	case s.B.ID:
		return s.A, true
	}
	return Member{}, false
}

// SessionID derives the session key from the two member ids. The first id is
// length-prefixed so no two distinct ordered pairs produce the same key, and
// (a, b) never collides with (b, a).
func SessionID(a, b ConnID) string {
	return strconv.Itoa(len(a)) + ":" + string(a) + ":" + string(b)
}

// SessionTable maps session ids to sessions and indexes them by member so
// the leave-session lookup is O(1).
type SessionTable struct {
	byID     map[string]*Session
	byMember map[ConnID]*Session
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		byID:     make(map[string]*Session),
		byMember: make(map[ConnID]*Session),
	}
}

// Insert adds s. It refuses (returns false) if either member already belongs
// to a session or both members are the same connection.
func (t *SessionTable) Insert(s *Session) bool {
	if s.A.ID == s.B.ID {
		return false
	}
	if _, ok := t.byMember[s.A.ID]; ok {
		return false
	}
	if _, ok := t.byMember[s.B.ID]; ok {
		return false
	}
	t.byID[s.ID] = s
	t.byMember[s.A.ID] = s
	t.byMember[s.B.ID] = s
	return true
}

// Leave removes the session containing id and returns the partner snapshot.
// It reports false if id is not in any session.
func (t *SessionTable) Leave(id ConnID) (Member, bool) {
	s, ok := t.byMember[id]
	if !ok {
		return Member{}, false
	}
	delete(t.byID, s.ID)
	delete(t.byMember, s.A.ID)
	delete(t.byMember, s.B.ID)
	return s.Partner(id)
}

// Lookup returns the session id belongs to.
func (t *SessionTable) Lookup(id ConnID) (*Session, bool) {
	s, ok := t.byMember[id]
	return s, ok
}

func (t *SessionTable) Get(sessionID string) (*Session, bool) {
	s, ok := t.byID[sessionID]
	return s, ok
}

func (t *SessionTable) Contains(id ConnID) bool {
	_, ok := t.byMember[id]
	return ok
}

func (t *SessionTable) Len() int {
	return len(t.byID)
}

// Sessions returns copies of all active sessions.
func (t *SessionTable) Sessions() []Session {
	out := make([]Session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, *s)
	}
	return out
}
