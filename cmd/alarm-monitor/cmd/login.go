package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-monitor/internal/service/login"
)

// username logs in as someone other than the current OS user.
var username string

// loginCmd exchanges a PIN for a token and writes the token file.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token.",
	Long: `Prompts for the PIN, exchanges it for an access token and writes the token file.

A running watch picks up the new token without a restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return login.Run(ctx, &login.Options{
			ConfigPath: configPath,
			APIURL:     apiURL,
			TokenFile:  tokenFile,
			Username:   username,
			Input:      cmd.InOrStdin(),
			Prompt:     cmd.ErrOrStderr(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	loginCmd.Flags().StringVarP(&username, "user", "u", "", "username, the current OS user by default")
}
