package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/engine"
)

func TestPassSummary(t *testing.T) {
	tests := []struct {
		name string
		res  engine.Result
		want []string
	}{
		{
			name: "skipped",
			res:  engine.Result{Skipped: true},
			want: []string{"no content"},
		},
		{
			name: "rail with push",
			res: engine.Result{
				Mode:  annotate.ModeRail,
				Width: 1440,
				Notes: []engine.Note{
					{ID: "a", Offset: 0, Position: 0, Height: 30},
					{ID: "b", Offset: 50, Position: 10},
				},
				Fallbacks: 1,
			},
			want: []string{"2 notes", "rail at 1440px", "1 pushed", "1 estimated"},
		},
		{
			name: "inline",
			res:  engine.Result{Mode: annotate.ModeInline, Width: 800, SkippedAnchors: 2},
			want: []string{"0 notes", "inline at 800px", "2 unresolved"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := passSummary(tt.res)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("passSummary() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestAnnotationTable(t *testing.T) {
	res := engine.Result{
		Mode: annotate.ModeRail,
		Notes: []engine.Note{
			{ID: "first", Number: 1, Offset: 10, Position: 10, Height: 36},
			{ID: "second", Offset: 66, Position: 20, Height: 18},
		},
	}
	got := annotationTable(res)
	for _, want := range []string{"first", "second", "(1)", "36.0", "+46.0", "Pushed"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "(2)") {
		t.Errorf("unnumbered note got a marker:\n%s", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Microsecond, "2ms"},
		{250 * time.Microsecond, "250µs"},
		{1200 * time.Millisecond, "1.2s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
