package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/marginalia/pkg/cache"
	"github.com/matzehuels/marginalia/pkg/httputil"
	"github.com/matzehuels/marginalia/pkg/observability"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache, HTTP client and logger.
// Multiple goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Client *httputil.Client
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Client: httputil.NewClient(),
		Logger: logger,
	}
}

// Execute runs load → images → pass → render with artifact caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	hooks := observability.Pipeline()

	// Stage 1: Load
	loadStart := time.Now()
	data, baseDir, err := Load(ctx, r.Client, opts)
	if err != nil {
		hooks.OnLoadComplete(ctx, opts.Source, 0, time.Since(loadStart), err)
		return nil, err
	}
	result := &Result{
		DocHash:   cache.Hash(data),
		Artifacts: make(map[string][]byte),
	}
	result.Stats.LoadTime = time.Since(loadStart)
	r.Logger.Debug("loaded document", "source", opts.Source, "bytes", len(data), "duration", result.Stats.LoadTime)

	// Cached artifacts skip the pass entirely.
	if !opts.Refresh {
		if artifacts, ok := r.cached(ctx, result.DocHash, opts); ok {
			result.Artifacts = artifacts
			result.CacheInfo.RenderHit = true
			hooks.OnLoadComplete(ctx, opts.Source, 0, result.Stats.LoadTime, nil)
			r.Logger.Info("served from cache", "formats", opts.Formats)
			return result, nil
		}
	}

	// Stage 2+3: Images and pass
	doc, res, stats, err := Layout(ctx, data, baseDir, opts)
	if err != nil {
		hooks.OnLoadComplete(ctx, opts.Source, 0, time.Since(loadStart), err)
		return nil, err
	}
	stats.LoadTime = result.Stats.LoadTime
	result.Stats = stats
	result.Document = doc
	result.Pass = res
	hooks.OnLoadComplete(ctx, opts.Source, len(res.Notes), time.Since(loadStart), nil)

	r.Logger.Info("laid out annotations",
		"mode", res.Mode,
		"annotations", len(res.Notes),
		"pushed", res.Pushed(),
		"images", stats.Images,
		"duration", stats.LayoutTime)
	if stats.FailedImages > 0 {
		r.Logger.Warn("some images failed to load", "failed", stats.FailedImages)
	}

	// Stage 4: Render
	renderStart := time.Now()
	hooks.OnRenderStart(ctx, opts.Formats)
	artifacts, err := Render(doc, res, opts)
	result.Stats.RenderTime = time.Since(renderStart)
	hooks.OnRenderComplete(ctx, opts.Formats, result.Stats.RenderTime, err)
	if err != nil {
		return nil, err
	}
	result.Artifacts = artifacts

	for format, out := range artifacts {
		key := r.Keyer.ArtifactKey(result.DocHash, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, key, out, cache.ArtifactTTL); err != nil {
			r.Logger.Debug("artifact not cached", "format", format, "err", err)
			continue
		}
		observability.Cache().OnCacheSet(ctx, "artifact", len(out))
	}

	r.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"duration", result.Stats.RenderTime)
	return result, nil
}

// cached returns every requested artifact if all are in the cache.
func (r *Runner) cached(ctx context.Context, docHash string, opts Options) (map[string][]byte, bool) {
	artifacts := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		key := r.Keyer.ArtifactKey(docHash, opts.ArtifactKeyOpts(format))
		data, hit, err := r.Cache.Get(ctx, key)
		if err != nil || !hit {
			observability.Cache().OnCacheMiss(ctx, "artifact")
			return nil, false
		}
		observability.Cache().OnCacheHit(ctx, "artifact")
		artifacts[format] = data
	}
	return artifacts, true
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
