// Package initcmder provides the init command for initializing a local
// .faultline directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/faultline/pkg/cliui"
	"github.com/papercomputeco/faultline/pkg/config"
)

const (
	dirName = ".faultline"
)

const initLongDesc string = `Initialize a new .faultline/ directory in the current working directory.

Creates a local .faultline/ directory, with a config.toml holding the
default settings, that takes precedence over the default ~/.faultline/
directory for configuration and the SQLite database.

This is useful for keeping separate fault stores per project or directory.

Examples:
  faultline init`

const initShortDesc string = "Initialize a local .faultline/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runInit(w io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .faultline directory: %w", err)
	}

	err = cliui.Step(w, "Writing default config.toml", func() error {
		cfger, err := config.NewConfiger(dir)
		if err != nil {
			return err
		}
		return cfger.SaveConfig(config.NewDefaultConfig())
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Initialized .faultline directory: %s\n", cliui.SuccessMark, dir)
	return nil
}
