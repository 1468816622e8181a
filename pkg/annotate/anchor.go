package annotate

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/flow"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/sanitize"
)

// Markup vocabulary.
const (
	AttrRefID       = "note-ref-id"
	AttrNumbered    = "numbered"
	AttrContent     = "content"
	AttrNoteFor     = "data-note-for"
	ClassContent    = "reference-content"
	ClassMarker     = "note-marker"
	ClassMarginNote = "margin-note"
	ClassInlineNote = "inline-note"
	ClassNumber     = "note-number"
)

// ErrNoContent is returned by [Discover] when the document has no content
// region. Callers skip the pass.
var ErrNoContent = errors.New(errors.ErrCodeNoContent, "document has no content region")

// Anchor is a reference point in the content flow.
type Anchor struct {
	ID       string
	Numbered bool
	// Content is a sanitised, detached <span> holding the annotation body.
	Content *html.Node
	// Node is the live anchor element.
	Node *html.Node
	// Position is the anchor's offset relative to the rail origin, read
	// from the flow layout of this pass.
	Position float64
}

// DiscoverOptions configures [Discover].
type DiscoverOptions struct {
	// Mode decides marker handling: rail mode settles one marker per
	// numbered anchor, inline mode removes them.
	Mode Mode
	// Typesetter lays out the content region to read anchor positions.
	// Without one every position is 0.
	Typesetter *measure.Typesetter
	// ContentWidth is the reading column width used for the flow layout.
	ContentWidth float64
	// RailOffset is subtracted from every flow position.
	RailOffset float64
	Logger     *log.Logger
}

// Discovery is the outcome of [Discover].
type Discovery struct {
	Anchors  []Anchor
	Geometry *flow.Geometry
	// Skipped counts anchors dropped for lack of content.
	Skipped int
}

// Discover scans the content region for anchors in document order.
//
// Anchors whose content is empty after sanitising are skipped and lose any
// marker. Marker edits happen before the flow layout, so positions reflect
// the settled markup.
func Discover(doc *dom.Document, opts DiscoverOptions) (*Discovery, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	content := doc.Content()
	if content == nil {
		return nil, ErrNoContent
	}

	res := &Discovery{}
	seen := map[string]int{}
	counter := 1
	for i, n := range dom.FindAll(content, ".//*[@"+AttrRefID+"]") {
		if insidePayload(n, content) {
			continue
		}
		id := anchorID(n, i, seen)
		body := extract(n)
		if sanitize.IsEmpty(body) {
			logger.Debug("skipping anchor without content", "id", id)
			removeMarkers(n)
			res.Skipped++
			continue
		}
		numbered := dom.Attr(n, AttrNumbered) == "true"
		if numbered && opts.Mode == ModeRail {
			settleMarker(n, counter)
		} else {
			removeMarkers(n)
		}
		if numbered {
			counter++
		}
		res.Anchors = append(res.Anchors, Anchor{ID: id, Numbered: numbered, Content: body, Node: n})
	}

	if opts.Typesetter != nil {
		rail := doc.Rail()
		res.Geometry = flow.Layout(opts.Typesetter, content, flow.Options{
			Width: opts.ContentWidth,
			Skip:  func(n *html.Node) bool { return n == rail },
		})
		for i := range res.Anchors {
			top, _ := res.Geometry.Top(res.Anchors[i].Node)
			res.Anchors[i].Position = top - opts.RailOffset
		}
	}
	logger.Debug("discovered anchors", "anchors", len(res.Anchors), "skipped", res.Skipped)
	return res, nil
}

// extract returns the sanitised annotation body of an anchor: the nested
// payload, then the legacy content attribute, then the anchor's own body.
func extract(n *html.Node) *html.Node {
	if holder := findClass(n, ClassContent); holder != nil {
		return sanitize.Tree(holder, nil)
	}
	if dom.HasAttr(n, AttrContent) {
		if frag, err := sanitize.Fragment(dom.Attr(n, AttrContent)); err == nil {
			return frag
		}
	}
	return sanitize.Tree(n, func(c *html.Node) bool {
		return dom.HasClass(c, ClassMarker) || dom.HasClass(c, ClassInlineNote)
	})
}

func anchorID(n *html.Node, i int, seen map[string]int) string {
	id := dom.Attr(n, AttrRefID)
	if id == "" {
		id = "anchor-" + strconv.Itoa(i+1)
	}
	seen[id]++
	if k := seen[id]; k > 1 {
		id = fmt.Sprintf("%s-%d", id, k)
	}
	return id
}

// insidePayload reports whether n sits inside a hidden content holder.
func insidePayload(n, stop *html.Node) bool {
	for p := n.Parent; p != nil && p != stop; p = p.Parent {
		if dom.HasClass(p, ClassContent) {
			return true
		}
	}
	return false
}

// markers returns the marker elements owned by anchor n.
func markers(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if dom.HasClass(c, ClassContent) {
				continue
			}
			if dom.IsElement(c, atom.Sup) && dom.HasClass(c, ClassMarker) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// settleMarker leaves exactly one marker labelled num on n.
func settleMarker(n *html.Node, num int) {
	ms := markers(n)
	var m *html.Node
	if len(ms) == 0 {
		m = dom.Element(atom.Sup, "class", ClassMarker)
		n.AppendChild(m)
	} else {
		m = ms[0]
		for _, extra := range ms[1:] {
			dom.Remove(extra)
		}
	}
	label := strconv.Itoa(num)
	if dom.TextContent(m) != label || m.FirstChild != m.LastChild {
		dom.RemoveChildren(m)
		m.AppendChild(dom.Text(label))
	}
}

func removeMarkers(n *html.Node) int {
	ms := markers(n)
	for _, m := range ms {
		dom.Remove(m)
	}
	return len(ms)
}

func findClass(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if dom.HasClass(c, class) {
			return c
		}
		if found := findClass(c, class); found != nil {
			return found
		}
	}
	return nil
}
