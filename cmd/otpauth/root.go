package main

import (
	"github.com/MrEthical07/otpauth/internal/appconfig"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "otpauth",
		Short:         "Passwordless email sign-in API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envDir, "env-dir", ".", "directory holding an optional .env file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newLoadtestCmd())

	return cmd
}

func (o *rootOptions) load() (appconfig.Config, error) {
	return appconfig.Load(o.envDir)
}
