package main

import (
	"log/slog"
	"os"

	"github.com/visionfive-tools/tftpboot/cmd/tftpboot/commands"
	"golang.org/x/term"
)

func main() {
	// Console output owns stdout; logs go to stderr, text on a terminal
	// and JSON when piped.
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, options)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	slog.SetDefault(slog.New(handler))

	commands.Execute()
}
