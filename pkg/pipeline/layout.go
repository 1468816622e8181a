package pipeline

import (
	"bytes"
	"context"
	"time"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/images"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// Layout parses data, resolves its images and runs one pass. The engine
// never starts its loop: image results are applied directly and the pass
// runs on the calling goroutine.
func Layout(ctx context.Context, data []byte, baseDir string, opts Options) (*dom.Document, engine.Result, Stats, error) {
	var stats Stats
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, engine.Result{}, stats, err
	}
	start := time.Now()

	doc, err := dom.Parse(bytes.NewReader(data), opts.Selectors)
	if err != nil {
		return nil, engine.Result{}, stats, err
	}
	eng, err := engine.New(doc, engine.Options{
		Layout: opts.Layout,
		Font:   opts.Font,
		Width:  opts.Width,
		Mode:   opts.Mode,
		Frames: schedule.NewManualFrames(),
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, engine.Result{}, stats, err
	}
	defer eng.Close()

	reasons := []schedule.Reason{schedule.ReasonInitial}
	pending, err := eng.PendingImages(ctx)
	if err != nil {
		return nil, engine.Result{}, stats, err
	}
	if len(pending) > 0 {
		loader := opts.Images
		if loader == nil {
			loader = &images.Loader{}
		}
		if loader.BaseDir == "" {
			l := *loader
			l.BaseDir = baseDir
			loader = &l
		}
		if loader.Logger == nil {
			l := *loader
			l.Logger = opts.Logger
			loader = &l
		}
		err := loader.ResolveAll(ctx, pending, func(r images.Result) {
			stats.Images++
			if !r.OK() {
				stats.FailedImages++
			}
			eng.ImageResolved(r.Src, r.Size.Width, r.Size.Height, r.OK())
		})
		if err != nil {
			return nil, engine.Result{}, stats, err
		}
		reasons = append(reasons, schedule.ReasonImages)
		opts.Logger.Debug("resolved images", "images", stats.Images, "failed", stats.FailedImages)
	}

	res, err := eng.PassNow(ctx, reasons...)
	if err != nil {
		return nil, engine.Result{}, stats, err
	}
	stats.Annotations = len(res.Notes)
	stats.LayoutTime = time.Since(start)
	return doc, res, stats, nil
}
