package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oshokin/alarm-monitor/internal/service/monitor"
)

// noConsole disables the interactive console.
var noConsole bool

// watchCmd keeps the live view running.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show live alerts, the event log and command results.",
	Long: `Connects to the alert feed, fetches the event log and prints every change.

When stdin is a terminal, commands can be typed while watching:
arm, disarm, refresh, status and quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signalContext()
		defer stop()

		var input io.Reader
		if !noConsole && term.IsTerminal(int(os.Stdin.Fd())) {
			input = os.Stdin
		}

		return monitor.Run(ctx, &monitor.Options{
			ConfigPath: configPath,
			FeedURL:    feedURL,
			APIURL:     apiURL,
			TokenFile:  tokenFile,
			Output:     cmd.OutOrStdout(),
			Input:      input,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	watchCmd.Flags().BoolVar(&noConsole, "no-console", false, "do not read commands from stdin")
}
