// Package parsecmder provides the parse command for inspecting a printed
// stack trace without a server.
package parsecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/faultline/cmd/faultline/backend"
	"github.com/papercomputeco/faultline/pkg/cliui"
	"github.com/papercomputeco/faultline/pkg/config"
	"github.com/papercomputeco/faultline/pkg/reduce"
	"github.com/papercomputeco/faultline/pkg/trace"
)

type parseCommander struct {
	display   string
	aggregate string
	remove    string
	shorten   string
	markdown  bool
	json      bool

	algorithm      string
	includeModules bool
	configDir      string
}

const parseLongDesc string = `Parse a printed stack trace and show its identities.

Reads the trace from the given file, or from stdin when no file is given,
and prints the fault and fault strand identities it would be stored under
together with the reconstructed trace.

Frames can be compacted the same way the API does: --display keeps frames
(optionally shortened with --shorten), --aggregate collapses runs of frames
into one summary line, and --remove drops them. Each takes comma-separated
class-name prefixes.

Examples:
  faultline parse crash.txt
  pbpaste | faultline parse --aggregate org.springframework.,sun.reflect.
  faultline parse crash.txt --display com.example. --shorten short --markdown`

const parseShortDesc string = "Parse a stack trace and print its identities"

func NewParseCmd() *cobra.Command {
	cmder := &parseCommander{}

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: parseShortDesc,
		Long:  parseLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening trace: %w", err)
				}
				defer f.Close()
				in = f
			}

			return cmder.run(cmd, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.display, "display", "", "Comma-separated class prefixes to display")
	cmd.Flags().StringVar(&cmder.aggregate, "aggregate", "", "Comma-separated class prefixes to collapse into summary frames")
	cmd.Flags().StringVar(&cmder.remove, "remove", "", "Comma-separated class prefixes to drop")
	cmd.Flags().StringVar(&cmder.shorten, "shorten", "none", "Package shortening for displayed frames (none, short, moderate)")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render a markdown report")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the fault as JSON")
	config.AddStringFlag(cmd, config.Flags, config.FlagAlgorithm, &cmder.algorithm)
	config.AddBoolFlag(cmd, config.Flags, config.FlagModules, &cmder.includeModules)

	return cmd
}

func (c *parseCommander) run(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAlgorithm, config.FlagModules})

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	builder, err := backend.NewBuilder(cfg)
	if err != nil {
		return err
	}

	r, err := c.reducer()
	if err != nil {
		return err
	}

	text, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}

	f, err := trace.ParseFault(builder, string(text))
	if err != nil {
		return err
	}

	switch {
	case c.json:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(f)

	case c.markdown:
		md := cliui.TraceMarkdown(f, r)
		rendered, err := cliui.RenderMarkdown(md)
		if err != nil {
			// Fall back to the raw markdown.
			rendered = md
		}
		_, err = fmt.Fprint(out, rendered)
		return err

	default:
		_, err = fmt.Fprintf(out, "\n%s\n%s\n", cliui.RenderIdentities(f), cliui.RenderTrace(f, r))
		return err
	}
}

func (c *parseCommander) reducer() (*reduce.Reducer, error) {
	mode, err := reduce.ParseShortenMode(c.shorten)
	if err != nil {
		return nil, err
	}

	return &reduce.Reducer{
		Display:   reduce.ParsePrefixes(c.display, mode),
		Aggregate: reduce.ParsePrefixes(c.aggregate, reduce.ShortenNone),
		Remove:    reduce.ParsePrefixes(c.remove, reduce.ShortenNone),
	}, nil
}
