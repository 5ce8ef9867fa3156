package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SpandanM110/Chatroom/internal/chat"
	"github.com/SpandanM110/Chatroom/internal/client"
	"github.com/SpandanM110/Chatroom/internal/config"
	"github.com/SpandanM110/Chatroom/internal/peer"
	"github.com/SpandanM110/Chatroom/internal/ui"
	"github.com/SpandanM110/Chatroom/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagChatDomain   string
	flagChatServer   string
	flagChatInsecure bool
	flagChatSTUN     string
	flagChatTURN     string
	flagChatTURNUser string
	flagChatTURNPass string
	flagChatRelay    bool
	flagChatAddress  string
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Chat with a random stranger",
	Long: `Join the matchmaking queue and chat with whoever you are paired with.

Type to talk, /next for someone new, /end to finish the chat, /leave to stop
looking and /quit to exit.

Examples:
  chatroom chat
  chatroom chat --domain chat.example.com
  chatroom chat --server ws://localhost:8080/ws --relay --turn turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			Domain:     flagChatDomain,
			ServerURL:  flagChatServer,
			Insecure:   flagChatInsecure,
			STUNServer: flagChatSTUN,
			TURNServer: flagChatTURN,
			TURNUser:   flagChatTURNUser,
			TURNPass:   flagChatTURNPass,
			ForceRelay: flagChatRelay,
		})
		if err != nil {
			return client.NewError("load config", err)
		}
		return runChat(cmd.Context(), cfg)
	},
}

func runChat(ctx context.Context, cfg *config.Config) error {
	sp := ui.NewConnectionSpinner(fmt.Sprintf("Connecting to %s...", cfg.Domain))
	sp.Start()
	conn := client.New(cfg.WebSocketURL)
	if err := conn.Connect(ctx); err != nil {
		sp.Error("Could not reach the server")
		return client.NewError("connect to server", err)
	}
	sp.Stop()
	defer conn.Close()

	handler := client.NewHandler(conn.Incoming())
	go handler.Start()

	newPeer := func(offerer bool, signal peer.SignalFunc) (chat.Conversation, error) {
		p, err := peer.New(cfg, offerer, signal, peer.WithLogger(slog.Default()))
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	address := flagChatAddress
	if address == "" {
		address = "cli/" + version.Version
	}
	session := chat.NewSession(conn, handler, newPeer, address, slog.Default())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- session.Run(ctx)
	}()

	uiErr := ui.RunChat(session, session.Events())
	cancel()
	return chatResult(uiErr, <-result)
}

// chatResult picks the error worth reporting once the interface and the
// session have both stopped. Cancellation is a normal exit.
func chatResult(uiErr, sessionErr error) error {
	if uiErr != nil {
		return client.NewError("run interface", uiErr)
	}
	if sessionErr == nil || errors.Is(sessionErr, context.Canceled) {
		return nil
	}
	return sessionErr
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&flagChatDomain, "domain", "", "Server domain (env DOMAIN)")
	chatCmd.Flags().StringVar(&flagChatServer, "server", "", "Full WebSocket URL, overrides --domain (env SERVER_URL)")
	chatCmd.Flags().BoolVar(&flagChatInsecure, "insecure", false, "Use ws:// instead of wss:// (env INSECURE)")
	chatCmd.Flags().StringVar(&flagChatSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	chatCmd.Flags().StringVar(&flagChatTURN, "turn", "", "TURN server host (env TURN_SERVER)")
	chatCmd.Flags().StringVar(&flagChatTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	chatCmd.Flags().StringVar(&flagChatTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	chatCmd.Flags().BoolVar(&flagChatRelay, "relay", false, "Force traffic through the TURN server")
	chatCmd.Flags().StringVar(&flagChatAddress, "address", "", "Address published to partners")
}
