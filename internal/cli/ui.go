package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for emphasized values.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	stylePushed = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Println(keyStyle.Render(key) + " " + StyleValue.Render(value))
}

// =============================================================================
// Pass Display
// =============================================================================

// printPassStats prints a one-line summary of a pass and its timings.
func printPassStats(res engine.Result, stats pipeline.Stats) {
	parts := []string{passSummary(res)}
	if stats.Images > 0 {
		img := fmt.Sprintf("%d images", stats.Images)
		if stats.FailedImages > 0 {
			img += fmt.Sprintf(" (%d failed)", stats.FailedImages)
		}
		parts = append(parts, img)
	}
	parts = append(parts, formatDuration(stats.LoadTime+stats.LayoutTime+stats.RenderTime))
	fmt.Println("  " + StyleDim.Render(strings.Join(parts, " · ")))
}

// passSummary describes a pass in a few words.
func passSummary(res engine.Result) string {
	if res.Skipped {
		return "no content"
	}
	parts := []string{
		fmt.Sprintf("%d notes", len(res.Notes)),
		fmt.Sprintf("%s at %.0fpx", res.Mode, res.Width),
	}
	if n := res.Pushed(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d pushed", n))
	}
	if res.Fallbacks > 0 {
		parts = append(parts, fmt.Sprintf("%d estimated", res.Fallbacks))
	}
	if res.SkippedAnchors > 0 {
		parts = append(parts, fmt.Sprintf("%d unresolved", res.SkippedAnchors))
	}
	return strings.Join(parts, ", ")
}

// annotationTable renders the notes of a pass as a table. Rows whose note
// sits below its anchor are highlighted.
func annotationTable(res engine.Result) string {
	rows := make([][]string, len(res.Notes))
	pushed := make([]bool, len(res.Notes))
	for i, n := range res.Notes {
		num := "–"
		if n.Number > 0 {
			num = annotate.MarkerLabel(n.Number)
		}
		shift := n.Offset - n.Position
		pushed[i] = res.Mode == annotate.ModeRail && shift > 0
		shiftStr := ""
		if pushed[i] {
			shiftStr = "+" + formatPx(shift)
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			n.ID,
			num,
			formatPx(n.Position),
			formatPx(n.Offset),
			formatPx(n.Height),
			shiftStr,
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "ID", "Marker", "Anchor", "Offset", "Height", "Pushed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == -1 {
				return styleHeader.Padding(0, 1)
			}
			if row >= 0 && row < len(pushed) && pushed[row] && col == 6 {
				return stylePushed.Padding(0, 1)
			}
			return base
		})
	return t.Render()
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(time.Millisecond).String()
}
