package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/SpandanM110/Chatroom/internal/ui"
	"github.com/SpandanM110/Chatroom/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatroom",
	Short: "Random one-to-one chat: matchmaking server and terminal client",
	Long: `Chatroom pairs strangers for one-to-one conversations. The server keeps a
waiting queue, matches two people at random and relays the WebRTC handshake
between them; the conversation itself flows directly between the peers.

Run "chatroom serve" to host a matchmaking server and "chatroom chat" to talk
to someone from your terminal.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
