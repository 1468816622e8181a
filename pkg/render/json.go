package render

import (
	"encoding/json"

	"github.com/matzehuels/marginalia/pkg/engine"
)

// JSONOption configures [RenderJSON].
type JSONOption func(*jsonRenderer)

type jsonRenderer struct {
	indent bool
	html   bool
	stats  bool
}

// WithJSONIndent pretty-prints the output.
func WithJSONIndent() JSONOption { return func(r *jsonRenderer) { r.indent = true } }

// WithJSONHTML includes each annotation's sanitized markup.
func WithJSONHTML() JSONOption { return func(r *jsonRenderer) { r.html = true } }

// WithJSONStats includes pass counters.
func WithJSONStats() JSONOption { return func(r *jsonRenderer) { r.stats = true } }

type jsonOutput struct {
	Mode         string           `json:"mode"`
	Width        float64          `json:"width"`
	ContentWidth float64          `json:"content_width,omitempty"`
	Skipped      bool             `json:"skipped,omitempty"`
	Annotations  []jsonAnnotation `json:"annotations"`
	Stats        *jsonStats       `json:"stats,omitempty"`
}

type jsonAnnotation struct {
	ID       string  `json:"id"`
	Number   *int    `json:"number"`
	Offset   float64 `json:"offset"`
	Height   float64 `json:"height"`
	Position float64 `json:"position"`
	Text     string  `json:"text"`
	HTML     string  `json:"html,omitempty"`
	Fallback bool    `json:"fallback,omitempty"`
}

type jsonStats struct {
	Seq            int      `json:"seq"`
	Reasons        []string `json:"reasons"`
	Pushed         int      `json:"pushed"`
	Fallbacks      int      `json:"fallbacks"`
	SkippedAnchors int      `json:"skipped_anchors"`
	DurationMS     float64  `json:"duration_ms"`
}

// RenderJSON encodes the placements of a pass. Unnumbered annotations have
// a null number.
func RenderJSON(res engine.Result, opts ...JSONOption) ([]byte, error) {
	var r jsonRenderer
	for _, opt := range opts {
		opt(&r)
	}

	out := jsonOutput{
		Mode:         string(res.Mode),
		Width:        res.Width,
		ContentWidth: res.ContentWidth,
		Skipped:      res.Skipped,
		Annotations:  make([]jsonAnnotation, 0, len(res.Notes)),
	}
	for _, n := range res.Notes {
		a := jsonAnnotation{
			ID:       n.ID,
			Offset:   n.Offset,
			Height:   n.Height,
			Position: n.Position,
			Text:     n.Text,
			Fallback: n.Fallback,
		}
		if n.Number > 0 {
			num := n.Number
			a.Number = &num
		}
		if r.html {
			a.HTML = n.HTML
		}
		out.Annotations = append(out.Annotations, a)
	}
	if r.stats {
		reasons := make([]string, len(res.Reasons))
		for i, rs := range res.Reasons {
			reasons[i] = string(rs)
		}
		out.Stats = &jsonStats{
			Seq:            res.Seq,
			Reasons:        reasons,
			Pushed:         res.Pushed(),
			Fallbacks:      res.Fallbacks,
			SkippedAnchors: res.SkippedAnchors,
			DurationMS:     float64(res.Duration.Microseconds()) / 1000,
		}
	}

	if r.indent {
		return json.MarshalIndent(out, "", "  ")
	}
	return json.Marshal(out)
}
