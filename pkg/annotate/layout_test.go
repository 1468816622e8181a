package annotate

import (
	"fmt"
	"testing"

	"golang.org/x/net/html"

	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/sanitize"
)

// fixedHeights measures the i-th call as heights[i].
func fixedHeights(heights ...float64) measure.Measurer {
	i := 0
	return measure.MeasurerFunc(func(*html.Node, float64, string) (float64, error) {
		h := heights[i%len(heights)]
		i++
		return h, nil
	})
}

func anchorsAt(numbered []bool, positions ...float64) []Anchor {
	out := make([]Anchor, len(positions))
	for i, p := range positions {
		body, _ := sanitize.Fragment(fmt.Sprintf("note %d", i+1))
		out[i] = Anchor{ID: fmt.Sprintf("a%d", i+1), Numbered: numbered[i], Content: body, Position: p}
	}
	return out
}

func offsets(anns []Annotation) []float64 {
	out := make([]float64, len(anns))
	for i, a := range anns {
		out[i] = a.VerticalOffset
	}
	return out
}

func numbers(anns []Annotation) []int {
	out := make([]int, len(anns))
	for i, a := range anns {
		out[i] = a.DisplayNumber
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLayout(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		name        string
		positions   []float64
		heights     []float64
		numbered    []bool
		wantOffsets []float64
		wantNumbers []int
	}{
		{
			name:        "three crowded anchors",
			positions:   []float64{0, 10, 15},
			heights:     []float64{50, 30, 40},
			numbered:    []bool{true, false, true},
			// The third note clears the second: 70 + 30 + 20.
			wantOffsets: []float64{0, 70, 120},
			wantNumbers: []int{1, 0, 2},
		},
		{
			name:        "single anchor keeps position",
			positions:   []float64{137},
			heights:     []float64{42},
			numbered:    []bool{true},
			wantOffsets: []float64{137},
			wantNumbers: []int{1},
		},
		{
			name:        "spread anchors stay aligned",
			positions:   []float64{0, 200, 400},
			heights:     []float64{30, 30, 30},
			numbered:    []bool{true, true, true},
			wantOffsets: []float64{0, 200, 400},
			wantNumbers: []int{1, 2, 3},
		},
		{
			name:        "exact spacing is not pushed",
			positions:   []float64{0, 70},
			heights:     []float64{50, 10},
			numbered:    []bool{false, false},
			wantOffsets: []float64{0, 70},
			wantNumbers: []int{0, 0},
		},
		{
			name:        "negative position kept",
			positions:   []float64{-12, 0},
			heights:     []float64{10, 10},
			numbered:    []bool{true, true},
			wantOffsets: []float64{-12, 18},
			wantNumbers: []int{1, 2},
		},
		{
			name:        "out of order positions keep document order",
			positions:   []float64{300, 100},
			heights:     []float64{20, 20},
			numbered:    []bool{true, true},
			wantOffsets: []float64{300, 340},
			wantNumbers: []int{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anns := Layout(anchorsAt(tt.numbered, tt.positions...), fixedHeights(tt.heights...), opts, nil)
			if got := offsets(anns); !equalFloats(got, tt.wantOffsets) {
				t.Errorf("offsets = %v, want %v", got, tt.wantOffsets)
			}
			got := numbers(anns)
			for i := range tt.wantNumbers {
				if got[i] != tt.wantNumbers[i] {
					t.Errorf("numbers = %v, want %v", got, tt.wantNumbers)
					break
				}
			}
		})
	}
}

func TestLayoutInvariants(t *testing.T) {
	opts := DefaultOptions()
	positions := []float64{5, 5, 5, 90, 91, 400, 390, 1000, 1001, 1002}
	numbered := []bool{true, false, true, true, false, false, true, true, true, false}
	anns := Layout(anchorsAt(numbered, positions...), fixedHeights(33, 71, 12, 54), opts, nil)

	next := 1
	for i, a := range anns {
		if a.VerticalOffset < positions[i] {
			t.Errorf("annotation %d above its anchor: %v < %v", i, a.VerticalOffset, positions[i])
		}
		if i > 0 {
			prev := anns[i-1]
			if a.VerticalOffset < prev.Bottom()+opts.MinSpacing {
				t.Errorf("annotations %d and %d overlap", i-1, i)
			}
			if a.VerticalOffset > positions[i] && a.VerticalOffset != prev.Bottom()+opts.MinSpacing {
				t.Errorf("annotation %d pushed further than needed", i)
			}
		}
		if numbered[i] {
			if a.DisplayNumber != next {
				t.Errorf("annotation %d number = %d, want %d", i, a.DisplayNumber, next)
			}
			next++
		} else if a.DisplayNumber != 0 {
			t.Errorf("unnumbered annotation %d got number %d", i, a.DisplayNumber)
		}
	}
}

func TestLayoutMarkerMeasured(t *testing.T) {
	var markers []string
	m := measure.MeasurerFunc(func(_ *html.Node, width float64, marker string) (float64, error) {
		if width != DefaultRailWidth {
			t.Errorf("width = %v", width)
		}
		markers = append(markers, marker)
		return 10, nil
	})
	Layout(anchorsAt([]bool{true, false, true}, 0, 0, 0), m, DefaultOptions(), nil)
	want := []string{"(1)", "", "(2)"}
	for i := range want {
		if markers[i] != want[i] {
			t.Errorf("markers = %q, want %q", markers, want)
			break
		}
	}
}

func TestLayoutFallbackHeight(t *testing.T) {
	opts := DefaultOptions()
	calls := 0
	m := measure.MeasurerFunc(func(*html.Node, float64, string) (float64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New(errors.ErrCodeUnmeasurable, "boom")
		}
		return 10, nil
	})
	anns := Layout(anchorsAt([]bool{true, true}, 0, 0), m, opts, nil)
	if len(anns) != 2 {
		t.Fatalf("annotations = %d", len(anns))
	}
	if !anns[0].Fallback || anns[0].EstimatedHeight != opts.FallbackHeight {
		t.Errorf("first = %+v, want fallback height", anns[0])
	}
	if want := opts.FallbackHeight + opts.MinSpacing; anns[1].VerticalOffset != want {
		t.Errorf("second offset = %v, want %v", anns[1].VerticalOffset, want)
	}
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		width float64
		want  Mode
	}{
		{1279, ModeInline},
		{1280, ModeRail},
		{1920, ModeRail},
		{0, ModeInline},
	}
	for _, tt := range tests {
		if got := ModeFor(tt.width, DefaultBreakpoint); got != tt.want {
			t.Errorf("ModeFor(%v) = %s, want %s", tt.width, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("defaults: %v", err)
	}
	bad := DefaultOptions()
	bad.RailWidth = 0
	if err := bad.Validate(); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("zero rail width: %v", err)
	}
}

func TestContentWidth(t *testing.T) {
	o := DefaultOptions()
	if got := o.ContentWidth(1000, ModeInline); got != 720 {
		t.Errorf("inline capped width = %v", got)
	}
	if got, want := o.ContentWidth(1280, ModeRail), 1280-2*o.Padding-o.RailWidth-o.RailGap; got != min(want, o.MaxContentWidth) {
		t.Errorf("rail width = %v", got)
	}
	if got := o.ContentWidth(10, ModeRail); got != 1 {
		t.Errorf("tiny viewport width = %v", got)
	}
}
