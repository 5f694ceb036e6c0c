package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-monitor/internal/config"
	"github.com/oshokin/alarm-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// feedURL overrides the feed endpoint from config.
	feedURL string
	// apiURL overrides the backend base URL from config.
	apiURL string
	// tokenFile overrides the token file from config.
	tokenFile string

	// rootCmd represents the base command of the monitor.
	rootCmd = &cobra.Command{
		Use:   "alarm-monitor",
		Short: "Watch the security alarm and control it.",
		Long: `Client-side monitor of a security alarm backend.

The watch command keeps a live view of the alert feed, the event log
and the last arm command. The token is read from the token file, which
login writes and which is re-read whenever it changes on disk.

Endpoints and the token file come from the configuration file, the
ALARM_FEED_URL, ALARM_API_URL and ALARM_TOKEN_FILE environment variables,
or the flags below, in increasing order of precedence.`,
		SilenceUsage: true,
	}
)

// Execute runs the alarm-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&feedURL, "feed-url", "", "WebSocket endpoint of the alert feed")
	flags.StringVar(&apiURL, "api-url", "", "base URL of the backend API")
	flags.StringVar(&tokenFile, "token-file", "", "path to the bearer token file")

	rootCmd.AddCommand(watchCmd, armCmd, loginCmd, checkCmd)
}
