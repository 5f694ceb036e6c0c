package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-monitor/internal/service/checker"
)

var (
	// healthAddress overrides the gRPC health endpoint from config.
	healthAddress string
	// interval repeats the check.
	interval time.Duration
)

// checkCmd probes the hub and the stored token.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check hub health and the stored token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return checker.Run(ctx, &checker.Options{
			ConfigPath:    configPath,
			APIURL:        apiURL,
			HealthAddress: healthAddress,
			Interval:      interval,
			Output:        cmd.OutOrStdout(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().StringVar(&healthAddress, "health-addr", "", "gRPC health endpoint of the hub")
	checkCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "repeat the check at this interval")
}
