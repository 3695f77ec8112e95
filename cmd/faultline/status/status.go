// Package statuscmder provides the status command for summarizing the
// configured fault store.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/faultline/cmd/faultline/backend"
	"github.com/papercomputeco/faultline/pkg/cliui"
	"github.com/papercomputeco/faultline/pkg/config"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/utils"
)

const statusLongDesc string = `Show what the configured fault store holds.

Opens the storage driver from the current configuration and prints the
number of faults, fault strands and feed entries, followed by the most
recent occurrences.

Examples:
  faultline status
  faultline status --recent 25
  faultline status --storage-driver postgres --postgres-dsn postgres://localhost/faultline`

const statusShortDesc string = "Summarize the fault store"

// previewLen bounds the exception header shown per occurrence.
const previewLen = 72

type statusCommander struct {
	recent        int
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	configDir     string
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagStorageDriver,
				config.FlagSQLite,
				config.FlagPostgresDSN,
			})

			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return cmder.run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().IntVarP(&cmder.recent, "recent", "n", 10, "Number of recent occurrences to show")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *statusCommander) run(ctx context.Context, w io.Writer, cfg *config.Config) error {
	builder, err := backend.NewBuilder(cfg)
	if err != nil {
		return err
	}

	var driver storage.Driver
	err = cliui.Step(w, fmt.Sprintf("Opening %s store", cfg.Storage.Driver), func() error {
		driver, err = backend.OpenDriver(ctx, cfg, c.configDir, builder, logger.Nop())
		return err
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	stats, err := driver.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Faults:       "), cliui.ValueStyle.Render(strconv.FormatInt(stats.Faults, 10)))
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Fault strands:"), cliui.ValueStyle.Render(strconv.FormatInt(stats.FaultStrands, 10)))
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Occurrences:  "), cliui.ValueStyle.Render(strconv.FormatInt(stats.FeedEntries, 10)))

	if stats.FeedEntries == 0 || c.recent <= 0 {
		fmt.Fprintf(w, "  %s No occurrences recorded.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}

	offset := max(int(stats.FeedEntries)-c.recent, 0)
	entries, err := driver.ListFeed(ctx, storage.ScopeGlobal, identity.Hash{}, offset, c.recent)
	if err != nil {
		return fmt.Errorf("listing feed: %w", err)
	}

	// Newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		header := "<missing fault>"
		if f, err := driver.GetFault(ctx, e.FaultID); err == nil {
			header = f.Head().ClassName()
			if msg := f.Head().Message(); msg != "" {
				header += ": " + msg
			}
		}

		fmt.Fprintf(w, "  %s %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("#%d", e.GlobalSequenceNo)),
			cliui.DimStyle.Render(e.Timestamp.Format("2006-01-02 15:04:05")),
			cliui.KeyStyle.Render(e.FaultStrandID.String()[:8]),
			cliui.ValueStyle.Render(utils.Truncate(header, previewLen)),
		)
	}

	fmt.Fprintln(w)
	return nil
}
