package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/marginalia/pkg/pipeline"
)

// renderCommand creates the render command for writing artifacts.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		flags      layoutFlags
		output     string
		formatsStr string
		theme      string
		leaders    bool
		scale      float64
		noCache    bool
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "render [file.html|url]",
		Short: "Render a laid out document to HTML, SVG, PNG, PDF or JSON",
		Long: `Render a laid out document.

Formats (comma-separated with -f):
  html  the document with markers and margin notes in place
  svg   a static picture of the page and its rail
  png   the SVG rasterised (requires rsvg-convert)
  pdf   the SVG as PDF (requires rsvg-convert)
  json  annotation placements

Results are cached; use --refresh to recompute.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.pipelineOptions(args[0], flags)
			if err != nil {
				return err
			}
			opts.Formats = parseFormats(formatsStr)
			opts.Theme = theme
			opts.Leaders = leaders
			opts.Scale = scale
			opts.Refresh = refresh
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), opts, output, noCache)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (single format) or base path (default: <input>.<format>)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): html (default), svg, png, pdf, json")
	cmd.Flags().StringVar(&theme, "theme", "light", "svg theme: light, dark")
	cmd.Flags().BoolVar(&leaders, "leaders", false, "draw connectors to pushed annotations (svg)")
	cmd.Flags().Float64Var(&scale, "scale", pipeline.DefaultScale, "png scale factor")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached artifacts")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, opts pipeline.Options, output string, noCache bool) error {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(c.Logger)
	spinner := newSpinnerWithContext(ctx, "Laying out "+filepath.Base(opts.Source)+"...")
	spinner.Start()
	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.StopWithError("Render failed")
		return err
	}
	spinner.Stop()

	base := outputBase(opts.Source, output, len(opts.Formats))
	var paths []string
	for _, format := range opts.Formats {
		path := base + "." + format
		if len(opts.Formats) == 1 && output != "" {
			path = output
		}
		if err := os.WriteFile(path, result.Artifacts[format], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	prog.done(fmt.Sprintf("Rendered %d artifact(s)", len(paths)))
	printSuccess("Rendered %s", filepath.Base(opts.Source))
	if result.CacheInfo.RenderHit {
		printDetail("served from cache")
	} else {
		printPassStats(result.Pass, result.Stats)
	}
	slices.Sort(paths)
	for _, p := range paths {
		printFile(p)
	}
	return nil
}

// outputBase derives the path artifacts are written to, without extension.
func outputBase(source, output string, formats int) string {
	if output != "" {
		if formats == 1 {
			return output
		}
		return strings.TrimSuffix(output, filepath.Ext(output))
	}
	if isRemote(source) {
		name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		if name == "" || name == "." || name == "/" {
			name = "page"
		}
		return name + ".out"
	}
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".out"
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
