// Package fonts provides the embedded Go font family used for text
// measurement and SVG rendering.
//
// The faces come from golang.org/x/image/font/gofont, so measurement never
// depends on fonts installed on the host. Parsed fonts are shared; faces are
// not safe for concurrent use and are created per caller with [NewFace].
package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Style selects a face of the family.
type Style int

const (
	Regular Style = iota
	Bold
	Italic
	Mono
)

// Styles lists every style in a stable order.
var Styles = []Style{Regular, Bold, Italic, Mono}

func (s Style) String() string {
	switch s {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case Mono:
		return "mono"
	default:
		return "regular"
	}
}

// FontFamily is the CSS font-family name matching the measured faces.
const FontFamily = "Go"

// FallbackFontFamily is used in rendered output for viewers without the Go fonts.
const FallbackFontFamily = `'Go', 'Helvetica Neue', Arial, sans-serif`

// MonoFontFamily is the CSS family for code spans.
const MonoFontFamily = `'Go Mono', Menlo, Consolas, monospace`

// TTF returns the raw TrueType data for a style.
func TTF(s Style) []byte {
	switch s {
	case Bold:
		return gobold.TTF
	case Italic:
		return goitalic.TTF
	case Mono:
		return gomono.TTF
	default:
		return goregular.TTF
	}
}

var (
	parsedMu sync.Mutex
	parsed   = map[Style]*opentype.Font{}
)

// Font returns the parsed font for a style. Results are cached.
func Font(s Style) (*opentype.Font, error) {
	parsedMu.Lock()
	defer parsedMu.Unlock()
	if f, ok := parsed[s]; ok {
		return f, nil
	}
	f, err := opentype.Parse(TTF(s))
	if err != nil {
		return nil, fmt.Errorf("parse %s font: %w", s, err)
	}
	parsed[s] = f
	return f, nil
}

// NewFace creates a face of the given style at size pixels (72 DPI).
func NewFace(s Style, size float64) (font.Face, error) {
	f, err := Font(s)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
