// Command seer runs the tarot and astrology workflow.
//
//	seer serve              HTTP intake: POST /stream answers with NDJSON updates
//	seer ask "question"     run one turn from the terminal
//	seer tarot-mcp          the tarot tool server on stdio
//
// Settings come from seer.toml, .env and SEER_* variables (see
// internal/config).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	config  string
	envFile string
	debug   bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "seer",
		Short:         "Tarot and astrology readings with long-term memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.config, "config", os.Getenv("SEER_CONFIG"), "path to seer.toml")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "path to a .env file")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "debug logging")

	root.AddCommand(newServeCmd(&g), newAskCmd(&g), newTarotMCPCmd(&g))
	return root
}

// logger writes to stderr; stdout is reserved for command output and, in
// tarot-mcp, for the protocol.
func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
