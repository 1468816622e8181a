package render

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/flow"
	"github.com/matzehuels/marginalia/pkg/fonts"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/sanitize"
)

// SVGOption configures [RenderSVG].
type SVGOption func(*svgRenderer)

type svgRenderer struct {
	layout  annotate.Options
	font    measure.Font
	theme   Theme
	leaders bool
	title   string
}

// WithLayout sets the layout options the pass ran with. They place the rail.
func WithLayout(o annotate.Options) SVGOption { return func(r *svgRenderer) { r.layout = o } }

// WithFont sets the font annotations are typeset with.
func WithFont(f measure.Font) SVGOption { return func(r *svgRenderer) { r.font = f } }

// WithTheme sets the colours.
func WithTheme(t Theme) SVGOption { return func(r *svgRenderer) { r.theme = t } }

// WithLeaders draws a connector from each anchor to an annotation that was
// pushed below it.
func WithLeaders() SVGOption { return func(r *svgRenderer) { r.leaders = true } }

// WithTitle sets the SVG title element.
func WithTitle(s string) SVGOption { return func(r *svgRenderer) { r.title = s } }

// RenderSVG draws a pass result as a static page.
func RenderSVG(res engine.Result, opts ...SVGOption) ([]byte, error) {
	r := svgRenderer{
		layout: annotate.DefaultOptions(),
		theme:  Light,
	}
	for _, opt := range opts {
		opt(&r)
	}
	r.layout = r.layout.WithDefaults()

	ts, err := measure.NewTypesetter(r.font)
	if err != nil {
		return nil, err
	}
	defer ts.Close()

	pad := r.layout.Padding
	railX := pad + res.ContentWidth + r.layout.RailGap
	rail := res.Mode == annotate.ModeRail

	width := 2*pad + res.ContentWidth
	if rail {
		width += r.layout.RailGap + r.layout.RailWidth
	}
	height := 0.0
	if res.Geometry != nil {
		height = res.Geometry.Height
	}
	if rail {
		for _, n := range res.Notes {
			height = max(height, r.layout.RailOffset+n.Offset+n.Height)
		}
	}
	height += 2 * pad

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.1f %.1f" width="%.0f" height="%.0f" font-family="%s">`+"\n",
		width, height, width, height, escapeXML(fonts.FallbackFontFamily))
	if r.title != "" {
		fmt.Fprintf(&buf, "  <title>%s</title>\n", escapeXML(r.title))
	}
	fmt.Fprintf(&buf, `  <rect width="100%%" height="100%%" fill="%s"/>`+"\n", r.theme.Background)

	if res.Geometry != nil {
		buf.WriteString(`  <g class="content">` + "\n")
		for _, b := range res.Geometry.Blocks {
			r.block(&buf, ts, b, pad, pad)
		}
		buf.WriteString("  </g>\n")
	}

	if rail && len(res.Notes) > 0 {
		buf.WriteString(`  <g class="rail">` + "\n")
		for _, n := range res.Notes {
			y := pad + r.layout.RailOffset + n.Offset
			if r.leaders && n.Offset > n.Position {
				r.leader(&buf, ts, pad+res.ContentWidth, pad+r.layout.RailOffset+n.Position, railX, y)
			}
			r.note(&buf, ts, n, railX, y)
		}
		buf.WriteString("  </g>\n")
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}

func (r *svgRenderer) block(buf *bytes.Buffer, ts *measure.Typesetter, b flow.Block, ox, oy float64) {
	x, y := ox+b.Left, oy+b.Top
	switch b.Kind {
	case flow.KindRule:
		fmt.Fprintf(buf, `    <line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`+"\n",
			x, y, x+b.Width, y, r.theme.Muted)
	case flow.KindImage, flow.KindDiagram:
		label := b.Kind.String()
		if alt := dom.Attr(b.Node, "alt"); alt != "" {
			label = alt
		}
		fmt.Fprintf(buf, `    <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="%s" stroke-dasharray="4 3"/>`+"\n",
			x, y, b.Width, b.Height, r.theme.Muted)
		fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-size="%.1f" fill="%s" text-anchor="middle">%s</text>`+"\n",
			x+b.Width/2, y+b.Height/2, ts.FontSize(), r.theme.Muted, escapeXML(label))
	default:
		scale := b.Scale
		if scale <= 0 {
			scale = 1
		}
		r.lines(buf, ts, b.Lines, x, y, scale, r.theme.Text)
	}
}

func (r *svgRenderer) lines(buf *bytes.Buffer, ts *measure.Typesetter, lines []measure.Line, x, y, scale float64, fill string) {
	lh := ts.LineHeight() * scale
	size := ts.FontSize() * scale
	for i, l := range lines {
		if len(l.Segments) == 0 {
			continue
		}
		baseline := y + float64(i)*lh + lh/2 + size*0.35
		fmt.Fprintf(buf, `    <text y="%.1f" font-size="%.1f" fill="%s" xml:space="preserve">`, baseline, size, fill)
		for _, s := range l.Segments {
			fmt.Fprintf(buf, `<tspan x="%.1f"%s>%s</tspan>`, x+s.X*scale, styleAttrs(s.Style), escapeXML(s.Text))
		}
		buf.WriteString("</text>\n")
	}
}

func (r *svgRenderer) note(buf *bytes.Buffer, ts *measure.Typesetter, n engine.Note, x, y float64) {
	w := r.layout.RailWidth
	fmt.Fprintf(buf, `    <g class="margin-note" id="note-%s">`+"\n", escapeXML(n.ID))
	fmt.Fprintf(buf, `    <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
		x, y, w, n.Height, r.theme.NoteFill)
	fmt.Fprintf(buf, `    <line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="2"/>`+"\n",
		x, y, x, y+n.Height, r.theme.NoteBorder)

	content, err := sanitize.Fragment(n.HTML)
	if err == nil {
		marker := ""
		if n.Number > 0 {
			marker = annotate.MarkerLabel(n.Number)
		}
		lines := ts.Typeset(content, w, marker)
		if marker != "" && len(lines) > 0 && len(lines[0].Segments) > 0 {
			// The marker is the first segment; draw it in the accent colour.
			first := lines[0].Segments[0]
			baseline := y + ts.LineHeight()/2 + ts.FontSize()*0.35
			fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-size="%.1f" font-weight="bold" fill="%s">%s</text>`+"\n",
				x+first.X, baseline, ts.FontSize(), r.theme.Marker, escapeXML(first.Text))
			lines[0].Segments = lines[0].Segments[1:]
		}
		r.lines(buf, ts, lines, x, y, 1, r.theme.Text)
	}
	buf.WriteString("    </g>\n")
}

func (r *svgRenderer) leader(buf *bytes.Buffer, ts *measure.Typesetter, x1, y1, x2, y2 float64) {
	mid := ts.LineHeight() / 2
	fmt.Fprintf(buf, `    <path d="M%.1f %.1f C%.1f %.1f %.1f %.1f %.1f %.1f" fill="none" stroke="%s" stroke-dasharray="2 2"/>`+"\n",
		x1, y1+mid, (x1+x2)/2, y1+mid, (x1+x2)/2, y2+mid, x2, y2+mid, r.theme.Leader)
}

func styleAttrs(s fonts.Style) string {
	switch s {
	case fonts.Bold:
		return ` font-weight="bold"`
	case fonts.Italic:
		return ` font-style="italic"`
	case fonts.Mono:
		return ` font-family="` + escapeXML(fonts.MonoFontFamily) + `"`
	default:
		return ""
	}
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
