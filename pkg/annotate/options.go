package annotate

import (
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/matzehuels/marginalia/pkg/errors"
)

// Default layout constants, in logical pixels.
const (
	DefaultMinSpacing      = 20.0
	DefaultRailWidth       = 275.0
	DefaultRailGap         = 24.0
	DefaultRailOffset      = 0.0
	DefaultFallbackHeight  = 24.0
	DefaultBreakpoint      = 1280.0
	DefaultPadding         = 32.0
	DefaultMaxContentWidth = 720.0
)

// Options holds the layout constants.
type Options struct {
	// MinSpacing is the minimum gap between consecutive annotations.
	MinSpacing float64 `json:"min_spacing" toml:"min_spacing"`
	// RailWidth is the width annotations are measured and rendered at.
	RailWidth float64 `json:"rail_width" toml:"rail_width"`
	// RailGap separates the content column from the rail.
	RailGap float64 `json:"rail_gap" toml:"rail_gap"`
	// RailOffset is the vertical offset of the rail origin relative to the
	// top of the content region.
	RailOffset float64 `json:"rail_offset" toml:"rail_offset"`
	// FallbackHeight replaces heights that cannot be measured.
	FallbackHeight float64 `json:"fallback_height" toml:"fallback_height"`
	// Breakpoint is the narrowest viewport that still uses the rail.
	Breakpoint float64 `json:"breakpoint" toml:"breakpoint"`
	// Padding is the horizontal page padding on each side.
	Padding float64 `json:"padding" toml:"padding"`
	// MaxContentWidth caps the reading column.
	MaxContentWidth float64 `json:"max_content_width" toml:"max_content_width"`
}

// DefaultOptions returns the canonical constant set.
func DefaultOptions() Options {
	return Options{
		MinSpacing:      DefaultMinSpacing,
		RailWidth:       DefaultRailWidth,
		RailGap:         DefaultRailGap,
		RailOffset:      DefaultRailOffset,
		FallbackHeight:  DefaultFallbackHeight,
		Breakpoint:      DefaultBreakpoint,
		Padding:         DefaultPadding,
		MaxContentWidth: DefaultMaxContentWidth,
	}
}

// WithDefaults fills unset fields. RailOffset keeps its value since zero is
// meaningful.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.MinSpacing <= 0 {
		o.MinSpacing = d.MinSpacing
	}
	if o.RailWidth <= 0 {
		o.RailWidth = d.RailWidth
	}
	if o.RailGap <= 0 {
		o.RailGap = d.RailGap
	}
	if o.FallbackHeight <= 0 {
		o.FallbackHeight = d.FallbackHeight
	}
	if o.Breakpoint <= 0 {
		o.Breakpoint = d.Breakpoint
	}
	if o.Padding < 0 {
		o.Padding = d.Padding
	}
	if o.MaxContentWidth <= 0 {
		o.MaxContentWidth = d.MaxContentWidth
	}
	return o
}

// Validate checks that the constants describe a usable layout.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.MinSpacing, validation.Min(0.0)),
		validation.Field(&o.RailWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&o.RailGap, validation.Min(0.0)),
		validation.Field(&o.FallbackHeight, validation.Required, validation.Min(1.0)),
		validation.Field(&o.Breakpoint, validation.Required, validation.Min(1.0)),
		validation.Field(&o.Padding, validation.Min(0.0)),
		validation.Field(&o.MaxContentWidth, validation.Min(0.0)),
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "layout options")
	}
	if math.IsNaN(o.RailOffset) || math.IsInf(o.RailOffset, 0) {
		return errors.New(errors.ErrCodeInvalidConfig, "layout options: rail_offset must be finite")
	}
	return nil
}

// ContentWidth returns the width of the reading column for a viewport.
// In rail mode the rail and its gap are carved out of the viewport first.
func (o Options) ContentWidth(viewport float64, m Mode) float64 {
	w := viewport - 2*o.Padding
	if m == ModeRail {
		w -= o.RailWidth + o.RailGap
	}
	if o.MaxContentWidth > 0 && w > o.MaxContentWidth {
		w = o.MaxContentWidth
	}
	if w < 1 {
		w = 1
	}
	return w
}

// RailLeft returns the x coordinate of the rail for a viewport.
func (o Options) RailLeft(viewport float64) float64 {
	return o.Padding + o.ContentWidth(viewport, ModeRail) + o.RailGap
}
