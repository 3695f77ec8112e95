// Package faultlinecmder provides the root faultline command.
package faultlinecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/faultline/cmd/faultline/config"
	initcmder "github.com/papercomputeco/faultline/cmd/faultline/init"
	parsecmder "github.com/papercomputeco/faultline/cmd/faultline/parse"
	servecmder "github.com/papercomputeco/faultline/cmd/faultline/serve"
	statuscmder "github.com/papercomputeco/faultline/cmd/faultline/status"
	versioncmder "github.com/papercomputeco/faultline/cmd/faultline/version"
)

const faultlineLongDesc string = `Faultline aggregates application errors.

Every submitted exception chain is reduced to a fault, the exact
occurrence, and a fault strand, its structural shape that stays stable
across message and line-number drift. Each submission appends an entry to
an ordered occurrence feed.

Commands:
  faultline serve     Run the API server
  faultline parse     Parse a stack trace and print its identities
  faultline status    Show what the configured store holds
  faultline config    Manage persistent configuration
  faultline init      Create a local .faultline/ directory`

const faultlineShortDesc string = "Faultline - error aggregation"

func NewFaultlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "faultline",
		Short:         faultlineShortDesc,
		Long:          faultlineLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .faultline/ directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(parsecmder.NewParseCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
