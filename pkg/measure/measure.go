package measure

import (
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/fonts"
)

// Default typography.
const (
	DefaultFontSize   = 14.0
	DefaultLineHeight = 1.5
)

// Measurer reports the rendered height of content at width. marker, when
// non-empty, is typeset in front of the content.
type Measurer interface {
	Measure(content *html.Node, width float64, marker string) (float64, error)
}

// MeasurerFunc adapts a function to [Measurer].
type MeasurerFunc func(content *html.Node, width float64, marker string) (float64, error)

// Measure calls f.
func (f MeasurerFunc) Measure(content *html.Node, width float64, marker string) (float64, error) {
	return f(content, width, marker)
}

// Font configures a [Typesetter].
type Font struct {
	Size       float64 `json:"size" toml:"size"`
	LineHeight float64 `json:"line_height" toml:"line_height"`
}

// WithDefaults fills zero fields.
func (f Font) WithDefaults() Font {
	if f.Size <= 0 {
		f.Size = DefaultFontSize
	}
	if f.LineHeight <= 0 {
		f.LineHeight = DefaultLineHeight
	}
	return f
}

// Piece is a run of text in a single style.
type Piece struct {
	Text  string
	Style fonts.Style
}

// Word is an unbreakable sequence of pieces. Break words force a line end.
type Word struct {
	Pieces []Piece
	Break  bool
}

// Segment is a positioned piece on a typeset line.
type Segment struct {
	Text  string
	Style fonts.Style
	X     float64
	Width float64
}

// Line is one typeset line. First is the index of its first word.
type Line struct {
	Segments []Segment
	Width    float64
	First    int
}

// Typesetter wraps inline content using the embedded Go fonts.
type Typesetter struct {
	font  Font
	faces map[fonts.Style]font.Face
	space map[fonts.Style]float64
}

// NewTypesetter creates faces for every style at f.Size.
func NewTypesetter(f Font) (*Typesetter, error) {
	f = f.WithDefaults()
	t := &Typesetter{
		font:  f,
		faces: make(map[fonts.Style]font.Face, len(fonts.Styles)),
		space: make(map[fonts.Style]float64, len(fonts.Styles)),
	}
	for _, s := range fonts.Styles {
		face, err := fonts.NewFace(s, f.Size)
		if err != nil {
			t.Close()
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "load %s face", s)
		}
		t.faces[s] = face
		t.space[s] = advance(face, " ")
	}
	return t, nil
}

// Close releases the faces.
func (t *Typesetter) Close() error {
	for _, f := range t.faces {
		f.Close()
	}
	return nil
}

// Font returns the typography in effect.
func (t *Typesetter) Font() Font { return t.font }

// FontSize returns the face size in pixels.
func (t *Typesetter) FontSize() float64 { return t.font.Size }

// LineHeight returns the height of one line in pixels.
func (t *Typesetter) LineHeight() float64 { return t.font.Size * t.font.LineHeight }

// TextWidth returns the advance of s in style.
func (t *Typesetter) TextWidth(s string, style fonts.Style) float64 {
	return advance(t.faces[style], s)
}

// Measure implements [Measurer]. The height is a whole number of lines and
// never less than one line.
func (t *Typesetter) Measure(content *html.Node, width float64, marker string) (float64, error) {
	if content == nil {
		return 0, errors.New(errors.ErrCodeUnmeasurable, "no content")
	}
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return 0, errors.New(errors.ErrCodeUnmeasurable, "invalid width %v", width)
	}
	lines := t.Typeset(content, width, marker)
	n := len(lines)
	if n == 0 {
		n = 1
	}
	return float64(n) * t.LineHeight(), nil
}

// Typeset wraps content at width with marker prefixed.
func (t *Typesetter) Typeset(content *html.Node, width float64, marker string) []Line {
	var in Inline
	if marker != "" {
		in.Words = append(in.Words, Word{Pieces: []Piece{{Text: marker, Style: fonts.Bold}}})
	}
	c := Collector{Skip: Hidden}
	c.collectChildren(&in, content, fonts.Regular)
	c.flush(&in)
	return t.Wrap(in.Words, width)
}

// Wrap breaks words into lines no wider than width. A word wider than the
// line is placed on its own line.
func (t *Typesetter) Wrap(words []Word, width float64) []Line {
	var (
		lines []Line
		cur   = Line{First: 0}
		empty = true
	)
	emit := func(next int) {
		lines = append(lines, cur)
		cur = Line{First: next}
		empty = true
	}
	for i, w := range words {
		if w.Break {
			emit(i + 1)
			continue
		}
		ww := t.wordWidth(w)
		gap := 0.0
		if !empty {
			gap = t.space[w.Pieces[0].Style]
		}
		if !empty && cur.Width+gap+ww > width {
			emit(i)
			gap = 0
		}
		x := cur.Width + gap
		for _, p := range w.Pieces {
			pw := t.TextWidth(p.Text, p.Style)
			cur.Segments = append(cur.Segments, Segment{Text: p.Text, Style: p.Style, X: x, Width: pw})
			x += pw
		}
		cur.Width = x
		empty = false
	}
	if !empty {
		lines = append(lines, cur)
	}
	return lines
}

func (t *Typesetter) wordWidth(w Word) float64 {
	var sum float64
	for _, p := range w.Pieces {
		sum += t.TextWidth(p.Text, p.Style)
	}
	return sum
}

func advance(face font.Face, s string) float64 {
	if face == nil || s == "" {
		return 0
	}
	return float64(font.MeasureString(face, s)) / 64
}

// Hidden reports whether n is not rendered: hidden attribute, display:none,
// or a hidden annotation payload.
func Hidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Head:
		return true
	}
	if dom.HasAttr(n, "hidden") || dom.HasClass(n, "reference-content") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(dom.Attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}
