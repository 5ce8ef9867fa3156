package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultAddr           = ":8080"
	DefaultSendBuffer     = 256
	DefaultMaxConnections = 10000
	DefaultConnectRate    = 1.0 // handshakes per second per IP
	DefaultConnectBurst   = 10

	DefaultDomain   = "localhost:8080"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = ""
	DefaultTURNUser = ""
	DefaultTURNPass = ""
)

// ServerConfig holds signaling server configuration
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// AllowedOrigins restricts the WebSocket upgrade. Empty allows all.
	AllowedOrigins []string

	// SendBuffer is the per-connection outbound queue length
	SendBuffer int

	// MaxConnections caps concurrently registered connections
	MaxConnections int

	// ConnectRate and ConnectBurst bound WebSocket handshakes per client IP
	ConnectRate  float64
	ConnectBurst int
}

// ServerOptions carries CLI flag overrides for the server
type ServerOptions struct {
	Addr           string
	AllowedOrigins string
	SendBuffer     int
	MaxConnections int
	ConnectRate    float64
	ConnectBurst   int
}

// LoadServer reads configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := firstNonEmpty(opts.Addr, os.Getenv("ADDR"))
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = DefaultAddr
		}
	}

	origins := firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"))

	sendBuffer, err := intSetting(opts.SendBuffer, "SEND_BUFFER", DefaultSendBuffer)
	if err != nil {
		return nil, err
	}
	maxConns, err := intSetting(opts.MaxConnections, "MAX_CONNECTIONS", DefaultMaxConnections)
	if err != nil {
		return nil, err
	}
	burst, err := intSetting(opts.ConnectBurst, "CONNECT_BURST", DefaultConnectBurst)
	if err != nil {
		return nil, err
	}

	connectRate := opts.ConnectRate
	if connectRate == 0 {
		if v := os.Getenv("CONNECT_RATE"); v != "" {
			connectRate, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid CONNECT_RATE %q: %w", v, err)
			}
		}
	}
	if connectRate == 0 {
		connectRate = DefaultConnectRate
	}

	if sendBuffer <= 0 || maxConns <= 0 || burst <= 0 || connectRate < 0 {
		return nil, fmt.Errorf("buffer, connection and rate settings must be positive")
	}

	return &ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(origins),
		SendBuffer:     sendBuffer,
		MaxConnections: maxConns,
		ConnectRate:    connectRate,
		ConnectBurst:   burst,
	}, nil
}

// OriginAllowed reports whether a browser Origin header may open a socket.
// Requests without an Origin header (non-browser clients) are always allowed.
func (c *ServerConfig) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Config holds chat client configuration
type Config struct {
	// Domain is the signaling server host[:port]
	Domain string

	// WebSocketURL is constructed from domain unless given explicitly
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading client config with CLI flag overrides
type Options struct {
	Domain     string
	ServerURL  string
	Insecure   bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads client configuration: CLI flags > environment > defaults.
func Load(opts Options) (*Config, error) {
	domain := firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)

	wsURL := firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"))
	if wsURL == "" {
		scheme := "wss"
		if opts.Insecure || os.Getenv("INSECURE") == "true" || strings.HasPrefix(domain, "localhost") {
			scheme = "ws"
		}
		wsURL = fmt.Sprintf("%s://%s/ws", scheme, domain)
	}
	u, err := url.Parse(wsURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("invalid server URL %q", wsURL)
	}

	cfg := &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServer:   firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:     firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:     firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
		ForceRelay:   opts.ForceRelay,
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// StatsURL returns the HTTP stats endpoint on the same host as the socket.
func (c *Config) StatsURL() string {
	u, err := url.Parse(c.WebSocketURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/stats"
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intSetting(flag int, env string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		return n, nil
	}
	return def, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
