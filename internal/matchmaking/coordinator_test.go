package matchmaking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"
)

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	tick := time.Unix(1700000000, 0)
	base := []Option{
		WithClock(func() time.Time {
			tick = tick.Add(time.Millisecond)
			return tick
		}),
		WithShuffler(NoShuffle),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewCoordinator(append(base, opts...)...)
}

func connect(t *testing.T, c *Coordinator, ids ...ConnID) {
	t.Helper()
	for _, id := range ids {
		if !c.Connect(id) {
			t.Fatalf("connect %s failed", id)
		}
	}
}

func mustValidate(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

// eventsFor returns the events addressed to id, in order.
func eventsFor(out []Notification, id ConnID) []Event {
	var evs []Event
	for _, n := range out {
		if n.To == id {
			evs = append(evs, n.Event)
		}
	}
	return evs
}

func hasEvent(out []Notification, id ConnID, ev Event) bool {
	for _, e := range eventsFor(out, id) {
		if e == ev {
			return true
		}
	}
	return false
}

func TestTwoJoinsFormOneSession(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "b")

	out := c.Join("a", "peer-a")
	if len(eventsFor(out, "a")) != 1 || !hasEvent(out, "a", EventSearching) {
		t.Fatalf("expected only searching for first joiner, got %v", out)
	}

	out = c.Join("b", "peer-b")
	var matchA, matchB *Notification
	for i := range out {
		if out[i].Event != EventPeerMatch {
			continue
		}
		switch out[i].To {
		case "a":
			matchA = &out[i]
		case "b":
			matchB = &out[i]
		}
	}
	if matchA == nil || matchB == nil {
		t.Fatalf("expected peerMatch for both, got %v", out)
	}
	if matchA.Address != "peer-b" || matchA.PeerID != "b" {
		t.Fatalf("a should learn b's address, got %+v", matchA)
	}
	if matchB.Address != "peer-a" || matchB.PeerID != "a" {
		t.Fatalf("b should learn a's address, got %+v", matchB)
	}
	if matchA.SessionID != matchB.SessionID {
		t.Fatal("both members must share the session id")
	}

	st := c.Stats()
	if st.Sessions != 1 || st.Waiting != 0 || st.MatchesTotal != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if c.StateOf("a") != StateInSession || c.StateOf("b") != StateInSession {
		t.Fatal("expected both in session")
	}
	mustValidate(t, c)
}

func TestThreeJoinsLeaveOneWaitingAndFourthMatches(t *testing.T) {
	c := newTestCoordinator(t, WithShuffler(CryptoShuffle))
	connect(t, c, "a", "b", "c", "d")

	c.Join("a", "")
	c.Join("b", "")
	c.Join("c", "")

	st := c.Stats()
	if st.Sessions != 1 || st.Waiting != 1 {
		t.Fatalf("expected one session and one waiting, got %+v", st)
	}
	var waiting ConnID
	for _, id := range []ConnID{"a", "b", "c"} {
		if c.StateOf(id) == StateWaiting {
			waiting = id
		}
	}
	if waiting == "" {
		t.Fatal("expected a waiting client")
	}

	out := c.Join("d", "")
	if !hasEvent(out, waiting, EventPeerMatch) || !hasEvent(out, "d", EventPeerMatch) {
		t.Fatalf("expected %s to match d, got %v", waiting, out)
	}
	if st := c.Stats(); st.Sessions != 2 || st.Waiting != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	mustValidate(t, c)
}

func TestMatchIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "b", "c")
	for _, id := range []ConnID{"a", "b", "c"} {
		c.Join(id, "")
	}
	before := c.Stats().MatchesTotal

	if out := c.Match(); len(out) != 0 {
		t.Fatalf("expected no notifications, got %v", out)
	}
	if out := c.Match(); len(out) != 0 {
		t.Fatalf("expected no notifications, got %v", out)
	}
	if c.Stats().MatchesTotal != before {
		t.Fatal("repeated matching must not create sessions")
	}
}

func TestMatchEvenPoolLeavesNobody(t *testing.T) {
	c := newTestCoordinator(t, WithShuffler(CryptoShuffle))
	var ids []ConnID
	for i := 0; i < 10; i++ {
		id := ConnID(fmt.Sprintf("c%d", i))
		ids = append(ids, id)
		connect(t, c, id)
		// queue without triggering matching so one Match call sees them all
		c.pool.Add(WaitingEntry{ID: id, EnqueuedAt: c.now()})
	}

	out := c.Match()
	if len(out) != 10 {
		t.Fatalf("expected 10 peerMatch notifications, got %d", len(out))
	}
	seen := make(map[ConnID]int)
	for _, n := range out {
		seen[n.To]++
		if n.PeerID == n.To {
			t.Fatalf("%s paired with itself", n.To)
		}
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("%s matched %d times", id, seen[id])
		}
	}
	if c.Stats().Waiting != 0 {
		t.Fatal("expected empty pool")
	}
	mustValidate(t, c)
}

func TestMatchSingleEntryDoesNothing(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "solo")
	out := c.Join("solo", "")
	if hasEvent(out, "solo", EventPeerMatch) {
		t.Fatal("a single client must not be matched")
	}
	if c.StateOf("solo") != StateWaiting {
		t.Fatalf("expected waiting, got %s", c.StateOf("solo"))
	}
}

func pairUp(t *testing.T, c *Coordinator, a, b ConnID) {
	t.Helper()
	connect(t, c, a, b)
	c.Join(a, "addr-"+string(a))
	c.Join(b, "addr-"+string(b))
	if p, ok := c.PartnerOf(a); !ok || p.ID != b {
		t.Fatalf("expected %s paired with %s", a, b)
	}
}

func TestNextRequeuesBoth(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")
	old, _ := c.sessions.Lookup("a")
	oldStart := old.StartedAt

	out := c.Next("a")

	if !hasEvent(out, "b", EventPartnerLeft) {
		t.Fatalf("b should be told partnerLeft, got %v", out)
	}
	if hasEvent(out, "b", EventChatEnded) {
		t.Fatal("next must not look like a graceful end")
	}
	if !hasEvent(out, "a", EventSearching) || !hasEvent(out, "b", EventSearching) {
		t.Fatalf("both should be searching, got %v", out)
	}

	// a and b are the only waiting clients, so they are eligible again and
	// get paired into a brand-new session.
	if c.Stats().MatchesTotal != 2 {
		t.Fatalf("expected a fresh match, got %+v", c.Stats())
	}
	fresh, ok := c.sessions.Lookup("a")
	if !ok || !fresh.StartedAt.After(oldStart) {
		t.Fatal("old session must not survive next")
	}
	mustValidate(t, c)
}

func TestNextWithOthersWaitingPairsFreshly(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")
	connect(t, c, "c")
	c.Join("c", "")

	out := c.Next("a")
	if !hasEvent(out, "b", EventPartnerLeft) {
		t.Fatalf("expected partnerLeft, got %v", out)
	}
	// c waited longest so under arrival order it pairs with a.
	if p, ok := c.PartnerOf("c"); !ok || p.ID != "a" {
		t.Fatalf("expected c paired with a, got %+v", p)
	}
	if c.StateOf("b") != StateWaiting {
		t.Fatalf("expected b waiting, got %s", c.StateOf("b"))
	}
	mustValidate(t, c)
}

func TestEndChatNotifiesChatEnded(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")

	out := c.EndChat("b")
	evs := eventsFor(out, "a")
	if len(evs) < 2 || evs[0] != EventChatEnded || evs[1] != EventSearching {
		t.Fatalf("expected chatEnded then searching for a, got %v", evs)
	}
	if hasEvent(out, "a", EventPartnerLeft) {
		t.Fatal("graceful end must not be reported as partnerLeft")
	}
	if !hasEvent(out, "b", EventSearching) {
		t.Fatal("initiator should be searching")
	}
	mustValidate(t, c)
}

func TestEndChatOutsideSessionIsNoop(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")
	c.Join("a", "")
	if out := c.EndChat("a"); out != nil {
		t.Fatalf("expected no-op, got %v", out)
	}
	if out := c.Next("ghost"); out != nil {
		t.Fatalf("expected no-op for unknown id, got %v", out)
	}
	if c.StateOf("a") != StateWaiting {
		t.Fatal("waiting client must stay waiting")
	}
}

func TestJoinWhileInSessionRequeuesPartner(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")

	out := c.Join("a", "addr-a2")
	if !hasEvent(out, "b", EventPartnerLeft) {
		t.Fatalf("expected partnerLeft for b, got %v", out)
	}
	// only a and b are queued, so they are matched again with a's new address
	for _, n := range out {
		if n.To == "b" && n.Event == EventPeerMatch && n.Address != "addr-a2" {
			t.Fatalf("expected refreshed address, got %s", n.Address)
		}
	}
	mustValidate(t, c)
}

func TestRejoinWhileWaitingRefreshesEntry(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")
	c.Join("a", "old")
	first, _ := c.pool.Get("a")
	c.Join("a", "new")
	second, _ := c.pool.Get("a")

	if c.pool.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", c.pool.Len())
	}
	if !second.EnqueuedAt.After(first.EnqueuedAt) || second.Address != "new" {
		t.Fatalf("expected refreshed entry, got %+v", second)
	}
}

func TestLeaveRemovesFromPoolOnly(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "w")
	c.Join("w", "")
	c.Leave("w")
	if c.StateOf("w") != StateIdle {
		t.Fatalf("expected idle, got %s", c.StateOf("w"))
	}

	pairUp(t, c, "a", "b")
	c.Leave("a")
	if c.StateOf("a") != StateInSession {
		t.Fatal("leave must not break a session")
	}
	mustValidate(t, c)
}

func TestDisconnectWhileWaitingNotifiesNobody(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")
	c.Join("a", "")

	out := c.Disconnect("a")
	if len(out) != 0 {
		t.Fatalf("expected no notifications, got %v", out)
	}
	if c.StateOf("a") != StateAbsent {
		t.Fatalf("expected absent, got %s", c.StateOf("a"))
	}
	if st := c.Stats(); st.Sessions != 0 || st.Waiting != 0 || st.Registered != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestDisconnectInSessionRequeuesPartner(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")

	// simulate a racing join that already queued b
	c.pool.Add(WaitingEntry{ID: "b", EnqueuedAt: c.now()})

	out := c.Disconnect("a")
	if !hasEvent(out, "b", EventPartnerLeft) {
		t.Fatalf("expected partnerLeft, got %v", out)
	}
	if c.Stats().Sessions != 0 {
		t.Fatal("session must be removed")
	}
	if c.pool.Len() != 1 || !c.pool.Contains("b") {
		t.Fatalf("expected b queued exactly once, pool=%v", c.pool.Entries())
	}
	if c.StateOf("a") != StateAbsent {
		t.Fatal("disconnected client must be absent")
	}
	if out := c.Disconnect("a"); out != nil {
		t.Fatalf("double disconnect must be a no-op, got %v", out)
	}
}

func TestDisconnectPartnerGetsRematched(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")
	connect(t, c, "c")
	c.Join("c", "addr-c")

	out := c.Disconnect("a")
	if !hasEvent(out, "b", EventPeerMatch) || !hasEvent(out, "c", EventPeerMatch) {
		t.Fatalf("expected b and c to be matched, got %v", out)
	}
	mustValidate(t, c)
}

func TestStaleEventsAreNoops(t *testing.T) {
	c := newTestCoordinator(t)
	if out := c.Join("ghost", "x"); out != nil {
		t.Fatalf("expected no-op, got %v", out)
	}
	c.SetAddress("ghost", "x")
	if c.StateOf("ghost") != StateAbsent {
		t.Fatal("stale join must not create state")
	}
	connect(t, c, "a")
	if c.Connect("a") {
		t.Fatal("duplicate connect must be refused")
	}
}

func TestRelay(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")
	connect(t, c, "x")
	payload := json.RawMessage(`{"sdp":"v=0"}`)

	out := c.Relay("a", "", "offer", payload)
	if len(out) != 1 || out[0].To != "b" || out[0].From != "a" || string(out[0].Payload) != string(payload) {
		t.Fatalf("expected relay to partner, got %v", out)
	}

	out = c.Relay("b", "a", "answer", payload)
	if len(out) != 1 || out[0].To != "a" || out[0].Event != "answer" {
		t.Fatalf("expected explicit relay, got %v", out)
	}

	if out := c.Relay("x", "", "offer", payload); out != nil {
		t.Fatal("sender without partner and target must be dropped")
	}
	if out := c.Relay("a", "gone", "offer", payload); out != nil {
		t.Fatal("unregistered target must be dropped")
	}
	if out := c.Relay("a", "a", "offer", payload); out != nil {
		t.Fatal("self relay must be dropped")
	}

	c.Disconnect("b")
	if out := c.Relay("a", "b", "candidate", payload); out != nil {
		t.Fatal("relay to a disconnected client must be dropped")
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	c := newTestCoordinator(t)
	pairUp(t, c, "a", "b")
	c.pool.Add(WaitingEntry{ID: "a"})
	if err := c.Validate(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

// TestRandomInterleavings drives the coordinator with random event
// sequences and checks after every step that each connection is in exactly
// one place.
func TestRandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := newTestCoordinator(t, WithShuffler(rng.Shuffle))

	ids := make([]ConnID, 12)
	for i := range ids {
		ids[i] = ConnID(fmt.Sprintf("conn-%02d", i))
	}

	for step := 0; step < 5000; step++ {
		id := ids[rng.Intn(len(ids))]
		var out []Notification
		switch rng.Intn(7) {
		case 0:
			c.Connect(id)
		case 1, 2:
			out = c.Join(id, "addr-"+string(id))
		case 3:
			out = c.Next(id)
		case 4:
			out = c.EndChat(id)
		case 5:
			out = c.Leave(id)
		case 6:
			out = c.Disconnect(id)
		}

		if err := c.Validate(); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		for _, n := range out {
			if c.StateOf(n.To) == StateAbsent {
				t.Fatalf("step %d: notification %s for absent %s", step, n.Event, n.To)
			}
		}
		// matching always runs after pool growth, so at most one client
		// may be left waiting.
		if c.Stats().Waiting > 1 {
			t.Fatalf("step %d: %d clients waiting after matching", step, c.Stats().Waiting)
		}
	}
}
