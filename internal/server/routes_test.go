package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/matchmaking"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/gorilla/websocket"
)

func setupServer(t *testing.T, cfg *config.ServerConfig, limiter *IPLimiter) (*httptest.Server, *signaling.Hub) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := matchmaking.NewCoordinator(
		matchmaking.WithShuffler(matchmaking.NoShuffle),
		matchmaking.WithLogger(quiet),
	)
	hub := signaling.NewHub(coord, signaling.WithHubLogger(quiet))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(NewMux(hub, cfg, limiter))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server, hub
}

func defaultConfig() *config.ServerConfig {
	return &config.ServerConfig{SendBuffer: 64, MaxConnections: 100, ConnectRate: 100, ConnectBurst: 100}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, server *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("failed to connect websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	welcome := read(t, conn, signaling.MessageTypeWelcome)
	if welcome.PeerID == "" {
		t.Fatal("expected connection id in welcome")
	}
	return conn, welcome.PeerID
}

func read(t *testing.T, conn *websocket.Conn, typ string) signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read %s: %v", typ, err)
	}
	if msg.Type != typ {
		t.Fatalf("expected %s, got %s (%+v)", typ, msg.Type, msg)
	}
	return msg
}

func write(t *testing.T, conn *websocket.Conn, msg signaling.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to write %s: %v", msg.Type, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	HealthCheckHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestWebSocketPairingAndRelay(t *testing.T) {
	server, _ := setupServer(t, defaultConfig(), nil)
	a, idA := dial(t, server)
	b, idB := dial(t, server)

	write(t, a, signaling.Message{Type: signaling.MessageTypeJoin, Address: "peer-a"})
	read(t, a, signaling.MessageTypeSearching)
	write(t, b, signaling.Message{Type: signaling.MessageTypeJoin, Address: "peer-b"})
	read(t, b, signaling.MessageTypeSearching)

	ma := read(t, a, signaling.MessageTypePeerMatch)
	mb := read(t, b, signaling.MessageTypePeerMatch)
	if ma.Address != "peer-b" || ma.PeerID != idB {
		t.Fatalf("unexpected match for a: %+v", ma)
	}
	if mb.Address != "peer-a" || mb.PeerID != idA {
		t.Fatalf("unexpected match for b: %+v", mb)
	}

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	write(t, a, signaling.Message{Type: signaling.MessageTypeOffer, To: idB, Payload: payload})
	got := read(t, b, signaling.MessageTypeOffer)
	if got.From != idA {
		t.Fatalf("expected from %s, got %s", idA, got.From)
	}
	var decoded map[string]string
	if err := json.Unmarshal(got.Payload, &decoded); err != nil || decoded["sdp"] != "v=0" {
		t.Fatalf("payload altered in transit: %s", got.Payload)
	}
}

func TestWebSocketDisconnectNotifiesPartner(t *testing.T) {
	server, hub := setupServer(t, defaultConfig(), nil)
	a, _ := dial(t, server)
	b, _ := dial(t, server)

	write(t, a, signaling.Message{Type: signaling.MessageTypeJoin})
	read(t, a, signaling.MessageTypeSearching)
	write(t, b, signaling.Message{Type: signaling.MessageTypeJoin})
	read(t, b, signaling.MessageTypeSearching)
	read(t, a, signaling.MessageTypePeerMatch)
	read(t, b, signaling.MessageTypePeerMatch)

	a.Close()
	read(t, b, signaling.MessageTypePartnerLeft)
	read(t, b, signaling.MessageTypeSearching)

	stats, err := hub.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sessions != 0 || stats.Waiting != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWebSocketMalformedMessageKeepsConnection(t *testing.T) {
	server, _ := setupServer(t, defaultConfig(), nil)
	a, _ := dial(t, server)

	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	msg := read(t, a, signaling.MessageTypeError)
	if msg.Error != "malformed message" {
		t.Fatalf("unexpected error %q", msg.Error)
	}

	write(t, a, signaling.Message{Type: signaling.MessageTypeJoin})
	read(t, a, signaling.MessageTypeSearching)
}

func TestStatsEndpoint(t *testing.T) {
	server, _ := setupServer(t, defaultConfig(), nil)
	a, _ := dial(t, server)
	write(t, a, signaling.Message{Type: signaling.MessageTypeJoin})
	read(t, a, signaling.MessageTypeSearching)

	resp, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats signaling.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Registered != 1 || stats.Waiting != 1 || stats.Clients != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestConnectionRateLimit(t *testing.T) {
	server, _ := setupServer(t, defaultConfig(), NewIPLimiter(0.001, 1))
	dial(t, server)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err == nil {
		t.Fatal("expected second handshake to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", resp)
	}
}

func TestOriginRejected(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowedOrigins = []string{"https://chat.example"}
	server, _ := setupServer(t, cfg, nil)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	if err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	header.Set("Origin", "https://chat.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

func TestIPLimiterCleanup(t *testing.T) {
	l := NewIPLimiter(1, 1)
	if !l.Allow("1.2.3.4") {
		t.Fatal("expected first request to pass")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected burst to be exhausted")
	}
	l.Cleanup(-time.Second)
	if !l.Allow("1.2.3.4") {
		t.Fatal("expected a fresh limiter after cleanup")
	}
}
