// Package flow computes a vertical block layout for an HTML content region.
//
// It is the positioned-element model the annotation engine reads anchor
// offsets from: block elements stack top to bottom, inline content is
// wrapped into lines with a [measure.Typesetter], images take their height
// from resolved dimensions and diagrams from their rendered height. Every
// element met is assigned the top of the line box (or block) it starts on.
//
// The layout is recomputed from scratch for each pass and never cached.
package flow

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/fonts"
	"github.com/matzehuels/marginalia/pkg/measure"
)

// Default spacing.
const (
	DefaultBlockGap    = 16.0
	DefaultListIndent  = 24.0
	DefaultQuoteIndent = 16.0
)

// Kind classifies a laid out block.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindDiagram
	KindRule
	KindPre
)

func (k Kind) String() string {
	return [...]string{"text", "image", "diagram", "rule", "pre"}[k]
}

// Options configures a layout.
type Options struct {
	Width       float64
	BlockGap    float64
	ListIndent  float64
	QuoteIndent float64
	// Skip prunes additional subtrees, e.g. a rail nested in the content.
	Skip func(*html.Node) bool
}

func (o Options) withDefaults() Options {
	if o.BlockGap <= 0 {
		o.BlockGap = DefaultBlockGap
	}
	if o.ListIndent <= 0 {
		o.ListIndent = DefaultListIndent
	}
	if o.QuoteIndent <= 0 {
		o.QuoteIndent = DefaultQuoteIndent
	}
	return o
}

// Block is one laid out leaf: a paragraph of lines or a replaced element.
type Block struct {
	Node   *html.Node
	Kind   Kind
	Top    float64
	Left   float64
	Width  float64
	Height float64
	Scale  float64
	Lines  []measure.Line
}

// Geometry is the result of a layout.
type Geometry struct {
	Width      float64
	Height     float64
	LineHeight float64
	Blocks     []Block
	tops       map[*html.Node]float64
}

// Top returns the vertical offset of n, falling back to its nearest laid
// out ancestor.
func (g *Geometry) Top(n *html.Node) (float64, bool) {
	for p := n; p != nil; p = p.Parent {
		if t, ok := g.tops[p]; ok {
			return t, true
		}
	}
	return 0, false
}

// Layout lays out the children of root at opts.Width.
func Layout(ts *measure.Typesetter, root *html.Node, opts Options) *Geometry {
	opts = opts.withDefaults()
	l := &layouter{
		ts:   ts,
		opts: opts,
		geo: &Geometry{
			Width:      opts.Width,
			LineHeight: ts.LineHeight(),
			tops:       map[*html.Node]float64{},
		},
	}
	if root != nil {
		l.mark(root)
		l.container(root, 0, opts.Width)
	}
	l.geo.Height = l.y
	return l.geo
}

type layouter struct {
	ts   *measure.Typesetter
	opts Options
	geo  *Geometry
	y    float64
}

func (l *layouter) skip(n *html.Node) bool {
	if measure.Hidden(n) {
		return true
	}
	if n.Type == html.CommentNode {
		return true
	}
	return l.opts.Skip != nil && l.opts.Skip(n)
}

func (l *layouter) mark(n *html.Node) { l.markAt(n, l.y) }

func (l *layouter) markAt(n *html.Node, y float64) {
	if _, ok := l.geo.tops[n]; !ok {
		l.geo.tops[n] = y
	}
}

// container lays out the children of n, grouping consecutive inline
// children into anonymous paragraphs.
func (l *layouter) container(n *html.Node, left, width float64) {
	var run []*html.Node
	flush := func() {
		if len(run) > 0 {
			l.paragraph(run, left, width, 1, fonts.Regular)
			run = nil
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if l.skip(c) {
			continue
		}
		if c.Type == html.ElementNode && isBlock(c) {
			flush()
			l.element(c, left, width)
			continue
		}
		run = append(run, c)
	}
	flush()
}

func (l *layouter) element(n *html.Node, left, width float64) {
	l.mark(n)
	switch {
	case isDiagram(n):
		l.leaf(n, KindDiagram, left, width, attrFloat(n, "data-rendered-height"))
		return
	case n.DataAtom == atom.Img:
		l.leaf(n, KindImage, left, width, ImageHeight(n, width))
		return
	}

	switch n.DataAtom {
	case atom.Hr:
		l.leaf(n, KindRule, left, width, 1)
	case atom.Pre:
		l.pre(n, left, width)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		l.paragraph(childNodes(n), left, width, headingScale[n.DataAtom], fonts.Bold)
	case atom.Ul, atom.Ol, atom.Dd:
		l.container(n, left+l.opts.ListIndent, width-l.opts.ListIndent)
	case atom.Blockquote:
		l.container(n, left+l.opts.QuoteIndent, width-l.opts.QuoteIndent)
	default:
		l.container(n, left, width)
	}
}

var headingScale = map[atom.Atom]float64{
	atom.H1: 2, atom.H2: 1.5, atom.H3: 1.25, atom.H4: 1.1, atom.H5: 1, atom.H6: 1,
}

func (l *layouter) leaf(n *html.Node, kind Kind, left, width, height float64) {
	if height <= 0 {
		return
	}
	l.geo.Blocks = append(l.geo.Blocks, Block{
		Node: n, Kind: kind, Top: l.y, Left: left, Width: width, Height: height, Scale: 1,
	})
	l.y += height + l.opts.BlockGap
}

func (l *layouter) paragraph(nodes []*html.Node, left, width, scale float64, style fonts.Style) {
	in := measure.Collector{Skip: l.skip}.Collect(nodes, style)
	if len(in.Words) == 0 {
		for n := range in.Marks {
			l.mark(n)
		}
		return
	}
	lines := l.ts.Wrap(in.Words, width/scale)
	lh := l.ts.LineHeight() * scale
	for n, wi := range in.Marks {
		l.markAt(n, l.y+float64(lineOf(lines, wi))*lh)
	}
	h := float64(len(lines)) * lh
	l.geo.Blocks = append(l.geo.Blocks, Block{
		Node: nodes[0].Parent, Kind: KindText, Top: l.y, Left: left, Width: width,
		Height: h, Scale: scale, Lines: lines,
	})
	l.y += h + l.opts.BlockGap
}

func (l *layouter) pre(n *html.Node, left, width float64) {
	text := strings.TrimRight(dom.TextContent(n), "\n")
	if text == "" {
		return
	}
	var lines []measure.Line
	for _, s := range strings.Split(text, "\n") {
		w := l.ts.TextWidth(s, fonts.Mono)
		lines = append(lines, measure.Line{
			Segments: []measure.Segment{{Text: s, Style: fonts.Mono, Width: w}},
			Width:    w,
		})
	}
	h := float64(len(lines)) * l.ts.LineHeight()
	l.geo.Blocks = append(l.geo.Blocks, Block{
		Node: n, Kind: KindPre, Top: l.y, Left: left, Width: width, Height: h, Scale: 1, Lines: lines,
	})
	l.y += h + l.opts.BlockGap
}

// lineOf returns the index of the line holding word wi.
func lineOf(lines []measure.Line, wi int) int {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].First > wi })
	if i == 0 {
		return 0
	}
	return i - 1
}

// ImageHeight returns the rendered height of an <img> at the available
// width: its height attribute scaled down to fit, or 0 while unresolved.
func ImageHeight(n *html.Node, avail float64) float64 {
	h := attrFloat(n, "height")
	if h <= 0 {
		return 0
	}
	if w := attrFloat(n, "width"); w > 0 && avail > 0 && w > avail {
		h = h * avail / w
	}
	return h
}

func isDiagram(n *html.Node) bool {
	return dom.HasClass(n, "mermaid") || dom.HasAttr(n, "data-diagram")
}

var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Details: true, atom.Dialog: true, atom.Dd: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hgroup: true,
	atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Thead: true,
	atom.Tbody: true, atom.Tfoot: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Caption: true, atom.Summary: true, atom.Ul: true, atom.Img: true, atom.Body: true,
}

// isBlock reports whether n starts a new block: a block-level tag, a
// diagram, or an inline element wrapping an image or diagram.
func isBlock(n *html.Node) bool {
	if blockTags[n.DataAtom] || isDiagram(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlock(c) {
			return true
		}
	}
	return false
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func attrFloat(n *html.Node, key string) float64 {
	v := strings.TrimSuffix(strings.TrimSpace(dom.Attr(n, key)), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
