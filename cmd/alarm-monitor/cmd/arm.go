package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-monitor/internal/service/client"
)

// disarm sends disarm instead of arm.
var disarm bool

// armCmd sends one arm or disarm command.
var armCmd = &cobra.Command{
	Use:   "arm",
	Short: "Arm the system (or disarm it with --disarm).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return client.Run(ctx, &client.Options{
			ConfigPath: configPath,
			APIURL:     apiURL,
			TokenFile:  tokenFile,
			Disarm:     disarm,
			Output:     cmd.OutOrStdout(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	armCmd.Flags().BoolVarP(&disarm, "disarm", "d", false, "disarm instead of arm")
}
