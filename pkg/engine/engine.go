package engine

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/flow"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/observability"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// AttrRenderedHeight carries the height reported for a rendered diagram.
const AttrRenderedHeight = "data-rendered-height"

// DefaultWidth is the viewport width used when none is given.
const DefaultWidth = 1440.0

// Options configures an [Engine].
type Options struct {
	Layout annotate.Options
	Font   measure.Font
	// Width is the initial viewport width.
	Width float64
	// Mode pins the presentation. Empty follows the viewport width.
	Mode annotate.Mode
	// Measurer overrides the typesetter for annotation heights.
	Measurer measure.Measurer
	// Frames drives the scheduler. Defaults to a 16ms ticker.
	Frames schedule.FrameSource
	Logger *log.Logger
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	if o.Width < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "width must not be negative: %v", o.Width)
	}
	if _, err := annotate.ParseMode(string(o.Mode)); err != nil {
		return err
	}
	return nil
}

// Engine lays out one document.
type Engine struct {
	doc      *dom.Document
	opts     Options
	logger   *log.Logger
	ts       *measure.Typesetter
	measurer measure.Measurer
	frames   schedule.FrameSource
	sched    *schedule.Scheduler
	images   *ImageTracker

	width float64
	mode  annotate.Mode
	seq   int
	last  Result

	running atomic.Bool
	subsMu  sync.Mutex
	subs    []func(Result, *dom.Document)
}

// New creates an engine for doc. The document is owned by the engine from
// here on; use [Engine.Do] or [Engine.Mutate] to touch it.
func New(doc *dom.Document, opts Options) (*Engine, error) {
	if doc == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil document")
	}
	opts.Layout = opts.Layout.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	ts, err := measure.NewTypesetter(opts.Font)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		doc:      doc,
		opts:     opts,
		logger:   opts.Logger,
		ts:       ts,
		measurer: opts.Measurer,
		images:   NewImageTracker(),
		width:    opts.Width,
	}
	if e.measurer == nil {
		e.measurer = ts
	}
	e.frames = opts.Frames
	if e.frames == nil {
		e.frames = schedule.NewTickerFrames(schedule.DefaultFrameInterval)
	}
	e.sched = schedule.New(e.frames, e.pass, e.logger)
	e.images.Scan(e.scanRoot())
	return e, nil
}

// Close stops the frame source and releases the typesetter. Call it after
// Run has returned, or instead of Run for engines driven only by PassNow.
func (e *Engine) Close() error {
	e.frames.Stop()
	return e.ts.Close()
}

// Run requests the initial pass and drives the scheduler until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.sched.Request(schedule.ReasonInitial)
	return e.sched.Run(ctx)
}

// Start runs the engine on a new goroutine. Events reported after Start
// returns are guaranteed to go through the loop. The channel yields Run's
// error once the loop exits.
func (e *Engine) Start(ctx context.Context) <-chan error {
	e.running.Store(true)
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	return errc
}

// OnPass registers fn to receive every pass result on the loop goroutine.
func (e *Engine) OnPass(fn func(Result, *dom.Document)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, fn)
}

// Resize reports a new viewport width.
func (e *Engine) Resize(width float64) {
	if width <= 0 {
		e.logger.Warn("ignoring resize", "width", width)
		return
	}
	e.dispatch(func() {
		e.width = width
		e.sched.Request(schedule.ReasonResize)
	})
}

// ImageResolved reports that the image with src finished loading (ok) or
// failed. A pass is requested once no tracked image is pending any more.
func (e *Engine) ImageResolved(src string, width, height int, ok bool) {
	e.dispatch(func() {
		matched, settled := e.images.Resolve(src, width, height, ok)
		e.logger.Debug("image resolved", "src", src, "ok", ok, "matched", matched, "pending", e.images.Pending())
		if settled {
			e.sched.Request(schedule.ReasonImages)
		}
	})
}

// DiagramRendered reports that a diagram finished drawing. When id names a
// diagram container its height is recorded; an empty id only triggers the
// recompute.
func (e *Engine) DiagramRendered(id string, height float64) {
	e.dispatch(func() {
		if id != "" && height >= 0 {
			if n := e.findDiagram(id); n != nil {
				dom.SetAttr(n, AttrRenderedHeight, strconv.FormatFloat(height, 'f', -1, 64))
			} else {
				e.logger.Debug("unknown diagram", "id", id)
			}
		}
		e.sched.Request(schedule.ReasonDiagram)
	})
}

// Mutate applies fn to the document on the loop and requests a pass. When
// the change inserts images that are still loading, the pass waits for them
// to resolve instead.
func (e *Engine) Mutate(fn func(*dom.Document)) {
	e.dispatch(func() {
		fn(e.doc)
		if added := e.images.Scan(e.scanRoot()); added > 0 {
			e.logger.Debug("mutation added loading images", "images", added)
			return
		}
		e.sched.Request(schedule.ReasonMutation)
	})
}

// Replace swaps in a new document and requests a pass.
func (e *Engine) Replace(doc *dom.Document) {
	e.dispatch(func() {
		e.doc = doc
		e.images.Reset()
		e.images.Scan(e.scanRoot())
		e.sched.Request(schedule.ReasonMutation)
	})
}

// Do runs fn with the document on the loop and waits for it.
func (e *Engine) Do(ctx context.Context, fn func(*dom.Document)) error {
	if !e.running.Load() {
		fn(e.doc)
		return nil
	}
	return e.sched.Do(ctx, func() { fn(e.doc) })
}

// Last returns the most recent pass result.
func (e *Engine) Last(ctx context.Context) (Result, error) {
	var r Result
	err := e.Do(ctx, func(*dom.Document) { r = e.last })
	return r, err
}

// PendingImages returns the sources of images still loading.
func (e *Engine) PendingImages(ctx context.Context) ([]string, error) {
	var out []string
	err := e.Do(ctx, func(*dom.Document) { out = e.images.PendingSources() })
	return out, err
}

// PassNow runs a pass immediately and returns its result. Without a running
// loop it executes on the calling goroutine.
func (e *Engine) PassNow(ctx context.Context, reasons ...schedule.Reason) (Result, error) {
	if len(reasons) == 0 {
		reasons = []schedule.Reason{schedule.ReasonInitial}
	}
	if !e.running.Load() {
		e.pass(ctx, reasons)
		return e.last, nil
	}
	var r Result
	err := e.sched.Do(ctx, func() {
		e.pass(ctx, reasons)
		r = e.last
	})
	return r, err
}

// Stats reports scheduler counters.
func (e *Engine) Stats() (passes, coalesced int64) { return e.sched.Stats() }

func (e *Engine) dispatch(fn func()) {
	if !e.running.Load() {
		fn()
		return
	}
	if err := e.sched.Dispatch(fn); err != nil {
		e.logger.Debug("dropping event", "err", err)
	}
}

func (e *Engine) scanRoot() *html.Node {
	if c := e.doc.Content(); c != nil {
		return c
	}
	return e.doc.Root()
}

func (e *Engine) findDiagram(id string) *html.Node {
	lit := xpathLiteral(id)
	if n := dom.FindOne(e.doc.Root(), "//*[@id="+lit+"]"); n != nil {
		return n
	}
	return dom.FindOne(e.doc.Root(), "//*[@data-diagram="+lit+"]")
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no
// escapes, so a value holding both quote kinds is built with concat.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// pass runs on the loop goroutine.
func (e *Engine) pass(ctx context.Context, reasons []schedule.Reason) {
	start := time.Now()
	e.seq++
	names := reasonNames(reasons)
	hooks := observability.Pass()
	hooks.OnPassStart(ctx, names)

	mode := e.opts.Mode
	if mode == "" {
		mode = annotate.ModeFor(e.width, e.opts.Layout.Breakpoint)
	}
	if e.mode != "" && mode != e.mode {
		e.logger.Info("mode transition", "from", e.mode, "to", mode, "width", e.width)
	}
	e.mode = mode

	res := Result{
		Seq:     e.seq,
		Reasons: reasons,
		Mode:    mode,
		Width:   e.width,
	}
	defer func() {
		res.Duration = time.Since(start)
		e.last = res
		e.publish(res)
	}()

	if e.doc.Content() == nil {
		res.Skipped = true
		e.logger.Debug("no content region, skipping pass", "reasons", names)
		hooks.OnPassSkipped(ctx, names)
		return
	}
	res.ContentWidth = e.opts.Layout.ContentWidth(e.width, mode)

	switch mode {
	case annotate.ModeRail:
		e.railPass(ctx, &res)
	default:
		e.inlinePass(&res)
	}

	hooks.OnPassComplete(ctx, string(mode), len(res.Notes), time.Since(start))
	e.logger.Debug("pass",
		"seq", res.Seq,
		"reasons", names,
		"mode", mode,
		"notes", len(res.Notes),
		"fallbacks", res.Fallbacks,
		"duration", time.Since(start))
}

func (e *Engine) discover(mode annotate.Mode, contentWidth float64) (*annotate.Discovery, error) {
	return annotate.Discover(e.doc, annotate.DiscoverOptions{
		Mode:         mode,
		Typesetter:   e.ts,
		ContentWidth: contentWidth,
		RailOffset:   e.opts.Layout.RailOffset,
		Logger:       e.logger,
	})
}

func (e *Engine) railPass(ctx context.Context, res *Result) {
	if n := annotate.ClearInline(e.doc.Root()); n > 0 {
		res.Removed = n
		e.logger.Debug("cleared inline notes", "removed", n)
	}
	disc, err := e.discover(annotate.ModeRail, res.ContentWidth)
	if err != nil {
		res.Skipped = true
		e.logger.Debug("discovery failed", "err", err)
		return
	}
	res.Geometry = disc.Geometry
	res.SkippedAnchors = disc.Skipped

	anns := annotate.Layout(disc.Anchors, e.measurer, e.opts.Layout, e.logger)
	rail, created := e.doc.EnsureRail()
	if created {
		e.logger.Debug("created rail container", "id", dom.Attr(rail, "id"))
	}
	if rail == nil {
		e.logger.Warn("no place for a rail, annotations not rendered")
	} else {
		annotate.RenderRail(rail, anns, e.opts.Layout)
	}

	for _, a := range anns {
		if a.Fallback {
			res.Fallbacks++
			observability.Pass().OnFallbackHeight(ctx, a.ID)
		}
		res.Notes = append(res.Notes, noteFromAnnotation(a))
	}
}

func (e *Engine) inlinePass(res *Result) {
	if rail := e.doc.Rail(); rail != nil {
		if n := annotate.ClearRail(rail); n > 0 {
			res.Removed = n
			e.logger.Debug("cleared rail", "removed", n)
		}
	}
	disc, err := e.discover(annotate.ModeInline, res.ContentWidth)
	if err != nil {
		res.Skipped = true
		e.logger.Debug("discovery failed", "err", err)
		return
	}
	res.SkippedAnchors = disc.Skipped

	keep := make(map[string]bool, len(disc.Anchors))
	for _, a := range disc.Anchors {
		keep[a.ID] = true
	}
	if n := annotate.PruneInline(e.doc.Root(), keep); n > 0 {
		e.logger.Debug("pruned stale inline notes", "removed", n)
	}
	res.Inserted = annotate.ApplyInline(disc.Anchors)

	// Positions shift once notes are in the flow.
	content := e.doc.Content()
	res.Geometry = flow.Layout(e.ts, content, flow.Options{Width: res.ContentWidth})
	for _, a := range disc.Anchors {
		top, _ := res.Geometry.Top(a.Node)
		res.Notes = append(res.Notes, noteFromAnchor(a, top-e.opts.Layout.RailOffset))
	}
}

func (e *Engine) publish(res Result) {
	e.subsMu.Lock()
	subs := append([]func(Result, *dom.Document){}, e.subs...)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(res, e.doc)
	}
}

func reasonNames(rs []schedule.Reason) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
