// Package configcmder provides the config command for managing persistent
// faultline configuration stored in the .faultline/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent faultline configuration.

Configuration is stored as config.toml in the .faultline/ directory and
provides default values for command flags. CLI flags and FAULTLINE_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, e.g.
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen, ratelimit.start_tokens, eventstream.brokers

Use subcommands to get, set, or list configuration values:
  faultline config set <key> <value>    Set a configuration value
  faultline config get <key>            Get a configuration value
  faultline config list                 List all configuration values

Examples:
  faultline config set storage.driver postgres
  faultline config set ratelimit.refill_period 500ms
  faultline config get api.listen
  faultline config list`

const configShortDesc string = "Manage persistent faultline configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
