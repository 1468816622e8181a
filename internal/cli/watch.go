package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
)

// watchCommand creates the watch command, which re-lays out a file on every
// change and rewrites its HTML output.
func (c *CLI) watchCommand() *cobra.Command {
	var (
		flags  layoutFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "watch [file.html]",
		Short: "Re-run the layout whenever a document changes",
		Long: `Watch a document and keep a laid out copy up to date.

Every save replaces the document in a running engine; the pass that follows
rewrites the output file. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if isRemote(args[0]) {
				return fmt.Errorf("watch needs a local file, got %s", args[0])
			}
			if output == "" {
				output = outputBase(args[0], "", 1) + ".html"
			}
			return c.runWatch(cmd.Context(), args[0], flags, output)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.out.html)")

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, source string, flags layoutFlags, output string) error {
	live, err := c.newLiveDoc(ctx, source, flags)
	if err != nil {
		return err
	}
	defer live.engine.Close()

	abs, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	live.engine.OnPass(func(res engine.Result, doc *dom.Document) {
		if err := writeHTML(output, doc); err != nil {
			c.Logger.Error("write output", "path", output, "err", err)
			return
		}
		printInfo("pass %d %s %s", res.Seq, StyleDim.Render(fmt.Sprint(res.Reasons)), passSummary(res))
	})

	printInfo("Watching %s", StyleHighlight.Render(source))
	printFile(output)

	g, ctx := errgroup.WithContext(ctx)
	errc := live.engine.Start(ctx)
	g.Go(func() error { return <-errc })
	g.Go(func() error { return live.loadImages(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				c.Logger.Debug("document changed", "op", ev.Op)
				if err := live.reload(ctx); err != nil {
					c.Logger.Warn("reload failed", "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				c.Logger.Warn("watch error", "err", err)
			}
		}
	})
	return g.Wait()
}

func writeHTML(path string, doc *dom.Document) error {
	data, err := doc.HTML()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
