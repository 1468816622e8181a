package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/marginalia/internal/server"
	"github.com/matzehuels/marginalia/pkg/pipeline"
)

// serveCommand creates the serve command for the live layout server.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		dir     string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live layout server",
		Long: `Serve posts from a directory and lay out their annotations live.

Each browser tab opens a websocket session with its own engine. The page
reports its width, image sizes and diagram heights; the server answers with
annotation placements after every pass.

  GET /posts/{slug}        the post with the client script
  GET /api/layout/{slug}   one-shot JSON placements (?width=N)
  GET /ws/{slug}           websocket session
  GET /healthz             liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr, dir, noCache)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "posts directory (default from config, .)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching for /api/layout")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr, dir string, noCache bool) error {
	cfg := c.cfg()
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if dir == "" {
		dir = cfg.Server.Dir
	}

	store, err := c.newCache(ctx, noCache)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(store, nil, c.Logger)
	defer runner.Close()

	srv := server.New(server.Config{
		Addr:          addr,
		Dir:           dir,
		Width:         cfg.Server.Width,
		FrameInterval: cfg.Server.FrameInterval,
		Layout:        cfg.Layout,
		Font:          cfg.Font,
		Selectors:     cfg.Document,
		Images:        c.imageLoader(),
		Runner:        runner,
		Logger:        c.Logger,
	})

	printSuccess("Serving %s on %s", StyleHighlight.Render(dir), StyleHighlight.Render(addr))
	printDetail("Ctrl-C to stop")
	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		printInfo("Stopped")
	}
	return err
}
