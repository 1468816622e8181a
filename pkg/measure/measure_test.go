package measure

import (
	"testing"

	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/fonts"
	"github.com/matzehuels/marginalia/pkg/sanitize"
)

func newTypesetter(t *testing.T) *Typesetter {
	t.Helper()
	ts, err := NewTypesetter(Font{})
	if err != nil {
		t.Fatalf("NewTypesetter: %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	return ts
}

func TestMeasureLines(t *testing.T) {
	ts := newTypesetter(t)
	lh := ts.LineHeight()
	if lh != DefaultFontSize*DefaultLineHeight {
		t.Fatalf("LineHeight = %v", lh)
	}

	tests := []struct {
		name     string
		frag     string
		width    float64
		minLines int
		maxLines int
	}{
		{"single line", "short note", 275, 1, 1},
		{"wraps", "a considerably longer annotation body that has to wrap across several lines of the rail", 120, 3, 10},
		{"empty is one line", "", 275, 1, 1},
		{"break forces line", "one<br>two", 275, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := sanitize.Fragment(tt.frag)
			if err != nil {
				t.Fatal(err)
			}
			h, err := ts.Measure(n, tt.width, "")
			if err != nil {
				t.Fatalf("Measure: %v", err)
			}
			lines := int(h / lh)
			if lines < tt.minLines || lines > tt.maxLines {
				t.Errorf("lines = %d, want [%d, %d]", lines, tt.minLines, tt.maxLines)
			}
		})
	}
}

func TestMeasureMarkerWidens(t *testing.T) {
	ts := newTypesetter(t)
	n, _ := sanitize.Fragment("exactly fits")
	w := ts.TextWidth("exactly", fonts.Regular) + ts.space[fonts.Regular] + ts.TextWidth("fits", fonts.Regular)

	plain, _ := ts.Measure(n, w, "")
	marked, _ := ts.Measure(n, w, "(1)")
	if plain != ts.LineHeight() {
		t.Errorf("plain = %v, want one line", plain)
	}
	if marked <= plain {
		t.Errorf("marker did not add a line: %v <= %v", marked, plain)
	}
}

func TestMeasureErrors(t *testing.T) {
	ts := newTypesetter(t)
	n, _ := sanitize.Fragment("x")
	if _, err := ts.Measure(nil, 100, ""); !errors.Is(err, errors.ErrCodeUnmeasurable) {
		t.Errorf("nil content: %v", err)
	}
	if _, err := ts.Measure(n, 0, ""); !errors.Is(err, errors.ErrCodeUnmeasurable) {
		t.Errorf("zero width: %v", err)
	}
}

func TestWrapLineFirst(t *testing.T) {
	ts := newTypesetter(t)
	words := []Word{
		{Pieces: []Piece{{Text: "aaaa"}}},
		{Pieces: []Piece{{Text: "bbbb"}}},
		{Break: true},
		{Pieces: []Piece{{Text: "cccc"}}},
	}
	lines := ts.Wrap(words, 1000)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[1].First != 3 {
		t.Errorf("second line First = %d, want 3", lines[1].First)
	}
	if got := len(lines[0].Segments); got != 2 {
		t.Errorf("first line segments = %d", got)
	}
}
