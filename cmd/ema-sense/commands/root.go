// Package commands holds the ema-sense CLI.
package commands

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Version is set at build time.
var Version = "dev"

var logger = otelslog.NewLogger("github.com/koscakluka/ema-sense/cmd/ema-sense")

var rootCmd = &cobra.Command{
	Use:   "ema-sense",
	Short: "Event-driven assistant that sees, listens and answers",
	Long: `ema-sense watches a camera and a microphone, turns what it perceives
into events, answers spoken commands and broadcasts everything to
websocket clients.

Run 'ema-sense serve' to start the assistant and 'ema-sense console' to
attach a terminal to it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
