// Package cli implements the marginalia command-line interface.
//
// # Commands
//
//   - layout: run one pass and print where every annotation lands
//   - render: write HTML, SVG, PNG, PDF or JSON artifacts
//   - watch: re-run the layout whenever the input file changes
//   - serve: the live layout server used by the blog
//   - preview: a terminal preview that follows the window width
//   - cache: manage the artifact cache
//
// All commands support --verbose (-v) for debug-level logging and --config
// to point at a TOML configuration file.
package cli

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/buildinfo"
	"github.com/matzehuels/marginalia/pkg/cache"
	"github.com/matzehuels/marginalia/pkg/config"
	"github.com/matzehuels/marginalia/pkg/httputil"
	"github.com/matzehuels/marginalia/pkg/images"
	"github.com/matzehuels/marginalia/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "marginalia"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	config     *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Marginalia lays out margin notes beside long-form text",
		Long:         `Marginalia places footnote-style annotations in a side rail next to their anchors without overlaps, and folds them into the text on narrow screens.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/marginalia/config.toml)")

	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads .env and the config file once per process.
func (c *CLI) loadConfig() error {
	if c.config != nil {
		return nil
	}
	if err := config.LoadEnv("."); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.config = cfg
	c.Logger.Debug("loaded config", "path", c.configPath)
	return nil
}

// cfg returns the loaded configuration, or the defaults before loading.
func (c *CLI) cfg() *config.Config {
	if c.config == nil {
		return config.Default()
	}
	return c.config
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	store, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(store, nil, c.Logger), nil
}

func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	cc := c.cfg().Cache
	if noCache || cc.Disabled {
		return cache.NewNullCache(), nil
	}
	if cc.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	dir, err := c.cacheDir()
	if err != nil {
		c.Logger.Warn("no cache directory, caching disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// cacheDir returns the configured cache directory or the per-user default.
func (c *CLI) cacheDir() (string, error) {
	if dir := c.cfg().Cache.Dir; dir != "" {
		return dir, nil
	}
	return cache.DefaultDir()
}

// imageLoader builds the image size resolver from the config.
func (c *CLI) imageLoader() *images.Loader {
	ic := c.cfg().Images
	l := &images.Loader{Concurrency: ic.Concurrency, Logger: c.Logger}
	if ic.Remote {
		l.Client = httputil.NewClient()
		if hc, err := httputil.NewCache("", c.cfg().Cache.TTL); err == nil {
			l.Cache = hc.Namespace("img:")
		}
	}
	return l
}

// =============================================================================
// Options Helpers
// =============================================================================

// layoutFlags are the flags shared by every command that runs a pass.
type layoutFlags struct {
	width float64
	mode  string
}

func (f *layoutFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&f.width, "width", "w", pipeline.DefaultWidth, "viewport width in pixels")
	cmd.Flags().StringVar(&f.mode, "mode", "", "force a presentation: rail or inline (default: by width)")
}

// pipelineOptions merges the config with command flags.
func (c *CLI) pipelineOptions(source string, f layoutFlags) (pipeline.Options, error) {
	mode, err := annotate.ParseMode(f.mode)
	if err != nil {
		return pipeline.Options{}, err
	}
	cfg := c.cfg()
	return pipeline.Options{
		Source:    source,
		Width:     f.width,
		Mode:      mode,
		Layout:    cfg.Layout,
		Font:      cfg.Font,
		Selectors: cfg.Document,
		Logger:    c.Logger,
		Images:    c.imageLoader(),
	}, nil
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return []string{pipeline.FormatHTML}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}
