package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-monitor/internal/config"
	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
	"github.com/oshokin/alarm-monitor/internal/service/server"
	"github.com/oshokin/alarm-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile path where the armed state is persisted.
	stateFile string
	// database is the SQLite file with users and the event log.
	database string

	// role of the user added by `user add`.
	role string

	// apiURL is the hub targeted by `simulate`.
	apiURL string
	// message is the simulated alert text.
	message string
	// interval between simulated alerts.
	interval time.Duration

	// rootCmd represents the base command for running the hub.
	rootCmd = &cobra.Command{
		Use:   "alarm-hub [listen-address]",
		Short: "Run the alarm backend for development and tests.",
		Long: `Starts the HTTP API, the WebSocket alert feed and the gRPC health endpoint.

Users and the event log live in SQLite, the armed state in a JSON file.
Listen address can be provided as argument to override config (e.g., :9000).`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StateFile:     stateFile,
				Database:      database,
			})
		},
	}

	// userCmd groups user management.
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manage hub users.",
	}

	// userAddCmd creates or updates a user.
	userAddCmd = &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user or replace its PIN and role.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q, want %s or %s", role, domain.RoleAdmin, domain.RoleGuest)
			}

			return server.AddUser(cmd.Context(), &server.UserOptions{
				ConfigPath: configPath,
				Database:   database,
				Username:   args[0],
				Role:       r,
				Input:      cmd.InOrStdin(),
				Prompt:     cmd.ErrOrStderr(),
			})
		},
	}

	// simulateCmd posts sensor alerts.
	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Post sensor alerts to a running hub.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return server.Simulate(ctx, &server.SimulateOptions{
				APIURL:   apiURL,
				Message:  message,
				Interval: interval,
				Timeout:  config.DefaultTimeout,
			})
		},
	}
)

// Execute runs the alarm-hub CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&database, "database", "", "path to the SQLite database")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist the armed state")

	userAddCmd.Flags().StringVarP(&role, "role", "r", string(domain.RoleAdmin), "admin or guest")
	userCmd.AddCommand(userAddCmd)

	simulateCmd.Flags().StringVar(&apiURL, "api-url", config.DefaultAPIURL, "hub base URL")
	simulateCmd.Flags().StringVarP(&message, "message", "m", server.DefaultSimulatedAlert, "alert text")
	simulateCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "repeat at this interval, once when zero")

	rootCmd.AddCommand(userCmd, simulateCmd)
}
