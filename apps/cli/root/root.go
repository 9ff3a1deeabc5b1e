package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the hostfleet admin CLI. Subcommands
// (tenant, sweep, plans) are attached here.
var rootCmd = &cobra.Command{
	Use:           "hostfleet",
	Short:         "hostfleet admin CLI",
	Long:          "Administrative utilities for the hostfleet provisioning engine (tenant management, sweeps, plan catalog).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
