// Package cli implements the tracker command tree.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root tracker command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Local session-activity tracker for coding-practice pages",
		Long: `tracker runs a local daemon that records per-tab practice sessions,
accrues active time, and relays lifecycle events to a collector service
with retry and offline buffering.

Available subcommands:
  serve       Run the tracker daemon
  check       Check collector connectivity
  log         Show the recent event delivery log

Examples:
  tracker serve
  tracker serve --config ~/.tracker/config.yaml
  tracker check
  tracker log --limit 20`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the configuration file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.SetEnvPrefix("TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewLogCmd())

	return cmd
}
