package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/marginalia/pkg/pipeline"
	"github.com/matzehuels/marginalia/pkg/render"
)

// layoutCommand creates the layout command, which runs one pass and reports
// where each annotation lands.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		flags  layoutFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "layout [file.html|url]",
		Short: "Compute annotation placements for a document",
		Long: `Compute annotation placements for a document.

Runs a single layout pass at --width and prints every annotation with its
number, vertical offset, height and how far it was pushed below its anchor.
Below the breakpoint the annotations are folded into the text instead and
the offsets are those of the inline notes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLayout(cmd.Context(), cmd.OutOrStdout(), args[0], flags, asJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func (c *CLI) runLayout(ctx context.Context, w io.Writer, source string, flags layoutFlags, asJSON bool) error {
	opts, err := c.pipelineOptions(source, flags)
	if err != nil {
		return err
	}
	data, base, err := pipeline.Load(ctx, nil, opts)
	if err != nil {
		return err
	}
	_, res, stats, err := pipeline.Layout(ctx, data, base, opts)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := render.RenderJSON(res, render.WithJSONIndent(), render.WithJSONStats())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	if res.Skipped {
		printWarning("No content region found in %s", source)
		return nil
	}
	fmt.Fprintln(w, annotationTable(res))
	printPassStats(res, stats)
	return nil
}
