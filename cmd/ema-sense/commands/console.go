package commands

import (
	"os"
	"os/signal"

	"github.com/koscakluka/ema-sense/core/console"
	"github.com/spf13/cobra"
)

var consoleAddr string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Attach a terminal console to a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return console.Run(ctx, consoleAddr)
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleAddr, "addr", "localhost:8000", "Server address or websocket URL")
}
