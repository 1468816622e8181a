package engine

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/flow"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// Result describes one pass.
type Result struct {
	// Seq numbers passes from 1 for the lifetime of the engine.
	Seq     int               `json:"seq"`
	Reasons []schedule.Reason `json:"reasons"`
	Mode    annotate.Mode     `json:"mode"`
	Width   float64           `json:"width"`
	// ContentWidth is the reading column width the flow was laid out at.
	ContentWidth float64 `json:"content_width"`
	Notes        []Note  `json:"notes"`
	// Skipped is set when the document had no content region.
	Skipped        bool `json:"skipped,omitempty"`
	SkippedAnchors int  `json:"skipped_anchors,omitempty"`
	Fallbacks      int  `json:"fallbacks,omitempty"`
	// Inserted and Removed count inline notes added and stale notes of the
	// other mode cleared by this pass.
	Inserted int            `json:"inserted,omitempty"`
	Removed  int            `json:"removed,omitempty"`
	Duration time.Duration  `json:"duration"`
	Geometry *flow.Geometry `json:"-"`
}

// Note is the transport form of an annotation, shared by the JSON sink and
// the live server.
type Note struct {
	ID       string  `json:"id"`
	Number   int     `json:"number,omitempty"`
	Offset   float64 `json:"offset"`
	Height   float64 `json:"height,omitempty"`
	Position float64 `json:"position"`
	Text     string  `json:"text"`
	HTML     string  `json:"html"`
	Fallback bool    `json:"fallback,omitempty"`
}

func noteFromAnnotation(a annotate.Annotation) Note {
	return Note{
		ID:       a.ID,
		Number:   a.DisplayNumber,
		Offset:   a.VerticalOffset,
		Height:   a.EstimatedHeight,
		Position: a.Position,
		Text:     strings.TrimSpace(dom.TextContent(a.Content)),
		HTML:     innerHTML(a.Content),
		Fallback: a.Fallback,
	}
}

func noteFromAnchor(a annotate.Anchor, position float64) Note {
	return Note{
		ID:       a.ID,
		Offset:   position,
		Position: position,
		Text:     strings.TrimSpace(dom.TextContent(a.Content)),
		HTML:     innerHTML(a.Content),
	}
}

func innerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(dom.RenderString(c))
	}
	return b.String()
}

// Pushed counts notes placed below their anchor.
func (r Result) Pushed() int {
	n := 0
	for _, note := range r.Notes {
		if note.Offset > note.Position {
			n++
		}
	}
	return n
}
