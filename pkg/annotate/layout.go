package annotate

import (
	"io"
	"math"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/matzehuels/marginalia/pkg/measure"
)

// Annotation is one placed annotation body.
type Annotation struct {
	ID string `json:"id"`
	// DisplayNumber is 1-based for numbered anchors and 0 otherwise.
	DisplayNumber   int        `json:"number,omitempty"`
	Content         *html.Node `json:"-"`
	VerticalOffset  float64    `json:"offset"`
	EstimatedHeight float64    `json:"height"`
	// Position is the anchor position the annotation was aligned against.
	Position float64 `json:"position"`
	// Fallback is set when the height could not be measured.
	Fallback bool `json:"fallback,omitempty"`
}

// Bottom returns the lower edge of the annotation.
func (a Annotation) Bottom() float64 { return a.VerticalOffset + a.EstimatedHeight }

// Pushed reports whether the annotation was moved below its anchor.
func (a Annotation) Pushed() bool { return a.VerticalOffset > a.Position }

// MarkerLabel returns the "(n)" prefix for a display number.
func MarkerLabel(n int) string {
	return "(" + strconv.Itoa(n) + ")"
}

// Layout places annotations for anchors in a single greedy sweep.
//
// Each annotation starts at its anchor's position unless that would bring it
// closer than opts.MinSpacing to the previous annotation's bottom, in which
// case it is pushed down to exactly that distance. Earlier annotations are
// never moved. Heights come from m at opts.RailWidth with the numbering
// marker prefixed; a failed measurement is logged and replaced by
// opts.FallbackHeight.
func Layout(anchors []Anchor, m measure.Measurer, opts Options, logger *log.Logger) []Annotation {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	out := make([]Annotation, 0, len(anchors))
	floor := math.Inf(-1)
	counter := 1
	for _, a := range anchors {
		top := math.Max(a.Position, floor)

		ann := Annotation{ID: a.ID, Content: a.Content, VerticalOffset: top, Position: a.Position}
		marker := ""
		if a.Numbered {
			ann.DisplayNumber = counter
			marker = MarkerLabel(counter)
			counter++
		}

		h, err := m.Measure(a.Content, opts.RailWidth, marker)
		if err != nil || h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			logger.Warn("measurement failed, using fallback height",
				"id", a.ID, "fallback", opts.FallbackHeight, "err", err)
			h = opts.FallbackHeight
			ann.Fallback = true
		}
		ann.EstimatedHeight = h
		out = append(out, ann)

		floor = top + h + opts.MinSpacing
	}
	return out
}
