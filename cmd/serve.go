package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/logging"
	"github.com/SpandanM110/Chatroom/internal/matchmaking"
	"github.com/SpandanM110/Chatroom/internal/server"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/SpandanM110/Chatroom/internal/version"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	limiterSweep    = time.Minute
)

var (
	flagServeAddr       string
	flagServeOrigins    string
	flagServeSendBuffer int
	flagServeMaxConns   int
	flagServeRate       float64
	flagServeBurst      int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the matchmaking and signaling server",
	Long: `Run the matchmaking and signaling server.

Clients connect over WebSocket at /ws. The server also exposes /health and
/stats.

Examples:
  chatroom serve
  chatroom serve --addr :9000 --origins https://chat.example.com
  PORT=3000 chatroom serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)
		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:           flagServeAddr,
			AllowedOrigins: flagServeOrigins,
			SendBuffer:     flagServeSendBuffer,
			MaxConnections: flagServeMaxConns,
			ConnectRate:    flagServeRate,
			ConnectBurst:   flagServeBurst,
		})
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

func runServer(ctx context.Context, cfg *config.ServerConfig) error {
	coord := matchmaking.NewCoordinator(matchmaking.WithLogger(slog.Default()))
	hub := signaling.NewHub(coord,
		signaling.WithMaxClients(cfg.MaxConnections),
		signaling.WithHubLogger(slog.Default()),
	)
	go hub.Run(ctx)

	limiter := server.NewIPLimiter(cfg.ConnectRate, cfg.ConnectBurst)
	limiter.StartCleanup(limiterSweep, ctx.Done())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewMux(hub, cfg, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Starting signaling server", "addr", cfg.Addr, "version", version.Version,
		"max_connections", cfg.MaxConnections, "origins", cfg.AllowedOrigins)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down signaling server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (env ADDR or PORT, default :8080)")
	serveCmd.Flags().StringVar(&flagServeOrigins, "origins", "", "Comma-separated allowed WebSocket origins (env ALLOWED_ORIGINS)")
	serveCmd.Flags().IntVar(&flagServeSendBuffer, "send-buffer", 0, "Outbound messages queued per connection (env SEND_BUFFER)")
	serveCmd.Flags().IntVar(&flagServeMaxConns, "max-connections", 0, "Maximum concurrent connections (env MAX_CONNECTIONS)")
	serveCmd.Flags().Float64Var(&flagServeRate, "connect-rate", 0, "WebSocket handshakes per second per IP (env CONNECT_RATE)")
	serveCmd.Flags().IntVar(&flagServeBurst, "connect-burst", 0, "Handshake burst per IP (env CONNECT_BURST)")
}
