// Package pipeline runs a document through the annotation engine once and
// renders the result.
//
// This is the batch counterpart of a live [engine.Engine]: the CLI, the
// preview server and tests all go through it so a document rendered from any
// entry point comes out the same.
//
// # Stages
//
//  1. Load: read the document from a file or URL
//  2. Images: resolve the natural size of every image ([images.Loader])
//  3. Pass: run one layout pass at the requested viewport width
//  4. Render: produce the requested formats (HTML, SVG, PNG, PDF, JSON)
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Source:  "post.html",
//	    Width:   1440,
//	    Formats: []string{"html", "json"},
//	})
//	html := result.Artifacts["html"]
package pipeline

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/cache"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/images"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/render"
)

// DefaultWidth is the viewport width used when none is given.
const DefaultWidth = engine.DefaultWidth

// DefaultScale is the PNG scale factor.
const DefaultScale = 2.0

// Format constants for output formats.
const (
	FormatHTML = "html"
	FormatSVG  = "svg"
	FormatPNG  = "png"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatHTML: true,
	FormatSVG:  true,
	FormatPNG:  true,
	FormatPDF:  true,
	FormatJSON: true,
}

// Options configures one pipeline run.
type Options struct {
	// Source is a file path or http(s) URL. Ignored when Document is set.
	Source string `json:"source,omitempty"`
	// Document is the raw HTML to lay out.
	Document []byte `json:"-"`
	// BaseDir resolves relative image paths. Defaults to the source's directory.
	BaseDir string `json:"-"`

	Width     float64          `json:"width,omitempty"`
	Mode      annotate.Mode    `json:"mode,omitempty"`
	Layout    annotate.Options `json:"layout"`
	Font      measure.Font     `json:"font"`
	Selectors dom.Selectors    `json:"selectors"`

	Formats []string `json:"formats,omitempty"`
	Theme   string   `json:"theme,omitempty"`
	Leaders bool     `json:"leaders,omitempty"`
	Scale   float64  `json:"scale,omitempty"`
	// Refresh bypasses the artifact cache.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger    `json:"-"`
	Images *images.Loader `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Document is the document after the pass. Nil when every artifact
	// came from the cache.
	Document *dom.Document
	// DocHash is the content hash of the source document.
	DocHash string
	// Pass is the pass result. Zero when every artifact came from the cache.
	Pass      engine.Result
	Artifacts map[string][]byte
	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Annotations  int
	Images       int
	FailedImages int
	LoadTime     time.Duration
	LayoutTime   time.Duration
	RenderTime   time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	RenderHit bool // Whether all artifacts came from cache
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: html, svg, png, pdf, json)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAndSetDefaults checks the options and fills in defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Source == "" && o.Document == nil {
		return errors.New(errors.ErrCodeInvalidInput, "source or document is required")
	}
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Width < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "width must be positive: %v", o.Width)
	}
	if _, err := annotate.ParseMode(string(o.Mode)); err != nil {
		return err
	}
	o.Layout = o.Layout.WithDefaults()
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	o.Font = o.Font.WithDefaults()
	if o.Selectors == (dom.Selectors{}) {
		o.Selectors = dom.DefaultSelectors()
	}
	if err := o.Selectors.Validate(); err != nil {
		return err
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatHTML}
	}
	o.Formats = slices.Clone(o.Formats)
	for i, f := range o.Formats {
		o.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	o.Formats = slices.Compact(o.Formats)
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if _, err := render.ThemeByName(o.Theme); err != nil {
		return err
	}
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ArtifactKeyOpts returns cache key options for one format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	k := cache.ArtifactKeyOpts{
		Format:    format,
		Width:     o.Width,
		Mode:      string(o.Mode),
		Layout:    o.Layout,
		Font:      o.Font,
		Selectors: o.Selectors,
	}
	switch format {
	case FormatSVG, FormatPDF:
		k.RenderOpts = map[string]any{"theme": o.Theme, "leaders": o.Leaders}
	case FormatPNG:
		k.RenderOpts = map[string]any{"theme": o.Theme, "leaders": o.Leaders, "scale": o.Scale}
	}
	return k
}

func (o *Options) svgOptions() ([]render.SVGOption, error) {
	theme, err := render.ThemeByName(o.Theme)
	if err != nil {
		return nil, err
	}
	opts := []render.SVGOption{
		render.WithLayout(o.Layout),
		render.WithFont(o.Font),
		render.WithTheme(theme),
	}
	if o.Leaders {
		opts = append(opts, render.WithLeaders())
	}
	return opts, nil
}
