package main

import (
	"log/slog"

	"github.com/SpandanM110/Chatroom/cmd"
	"github.com/SpandanM110/Chatroom/internal/logging"
)

func main() {
	// The chat TUI owns the terminal, so only errors are logged by default.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
