package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/matchmaking"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewUpgrader configures the websocket upgrader for cfg's origin policy.
func NewUpgrader(cfg *config.ServerConfig) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// Every accepted socket gets a fresh connection id and is handed to hub.
func ServeWs(hub *signaling.Hub, cfg *config.ServerConfig, limiter *IPLimiter) http.HandlerFunc {
	upgrader := NewUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow(clientIP(r)) {
			slog.Warn("Connection rate limited", "remote", r.RemoteAddr)
			http.Error(w, "Too many connections", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := signaling.NewClient(matchmaking.ConnID(uuid.NewString()), hub, conn, cfg.SendBuffer)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		// Start the client's read and write pumps in separate goroutines
		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}

// HealthCheckHandler reports liveness.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// StatsHandler serves a JSON snapshot of the hub.
func StatsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := hub.Stats(r.Context())
		if err != nil {
			http.Error(w, "Stats unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// NewMux registers all routes.
func NewMux(hub *signaling.Hub, cfg *config.ServerConfig, limiter *IPLimiter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheckHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub, cfg, limiter))
	return mux
}
