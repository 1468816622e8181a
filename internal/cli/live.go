package cli

import (
	"bytes"
	"context"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/images"
	"github.com/matzehuels/marginalia/pkg/pipeline"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// liveDoc is a document driven by a running engine, as used by watch and
// preview.
type liveDoc struct {
	opts   pipeline.Options
	engine *engine.Engine
	images *images.Loader
}

// newLiveDoc loads source and creates an engine for it. The engine is not
// started.
func (c *CLI) newLiveDoc(ctx context.Context, source string, flags layoutFlags) (*liveDoc, error) {
	opts, err := c.pipelineOptions(source, flags)
	if err != nil {
		return nil, err
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	data, base, err := pipeline.Load(ctx, nil, opts)
	if err != nil {
		return nil, err
	}
	doc, err := dom.Parse(bytes.NewReader(data), opts.Selectors)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(doc, engine.Options{
		Layout: opts.Layout,
		Font:   opts.Font,
		Width:  opts.Width,
		Mode:   opts.Mode,
		Frames: schedule.NewTickerFrames(c.cfg().Server.FrameInterval),
		Logger: c.Logger,
	})
	if err != nil {
		return nil, err
	}
	loader := opts.Images
	loader.BaseDir = base
	return &liveDoc{opts: opts, engine: eng, images: loader}, nil
}

// reload re-reads the source and swaps the document in.
func (l *liveDoc) reload(ctx context.Context) error {
	data, _, err := pipeline.Load(ctx, nil, l.opts)
	if err != nil {
		return err
	}
	doc, err := dom.Parse(bytes.NewReader(data), l.opts.Selectors)
	if err != nil {
		return err
	}
	l.engine.Replace(doc)
	return l.loadImages(ctx)
}

// loadImages resolves the images the engine is still waiting for.
func (l *liveDoc) loadImages(ctx context.Context) error {
	srcs, err := l.engine.PendingImages(ctx)
	if err != nil || len(srcs) == 0 {
		return err
	}
	return l.images.Feed(ctx, srcs, l.engine)
}
