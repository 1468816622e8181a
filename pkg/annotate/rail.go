package annotate

import (
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
)

// RenderRail writes annotations into rail as absolutely positioned blocks,
// replacing any rendered by an earlier pass.
func RenderRail(rail *html.Node, anns []Annotation, opts Options) {
	if rail == nil {
		return
	}
	ClearRail(rail)
	if !hasPosition(rail) {
		dom.SetAttr(rail, "style", joinStyle(dom.Attr(rail, "style"), "position:relative"))
	}
	for _, a := range anns {
		rail.AppendChild(railNote(a, opts.RailWidth))
	}
}

func railNote(a Annotation, width float64) *html.Node {
	div := dom.Element(atom.Div,
		"class", ClassMarginNote,
		"id", "note-"+a.ID,
		AttrNoteFor, a.ID,
		"data-height", px(a.EstimatedHeight),
		"style", "position:absolute;top:"+px(a.VerticalOffset)+"px;width:"+px(width)+"px",
	)
	if a.DisplayNumber > 0 {
		num := dom.Element(atom.Span, "class", ClassNumber)
		num.AppendChild(dom.Text(MarkerLabel(a.DisplayNumber)))
		div.AppendChild(num)
		div.AppendChild(dom.Text(" "))
	}
	if a.Content != nil {
		for c := a.Content.FirstChild; c != nil; c = c.NextSibling {
			div.AppendChild(dom.Clone(c))
		}
	}
	return div
}

// ClearRail removes every rendered annotation from rail and returns how
// many were removed.
func ClearRail(rail *html.Node) int {
	return removeClass(rail, ClassMarginNote)
}

func hasPosition(n *html.Node) bool {
	for _, decl := range splitStyle(dom.Attr(n, "style")) {
		if decl == "position:relative" || decl == "position:absolute" {
			return true
		}
	}
	return false
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
