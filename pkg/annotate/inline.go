package annotate

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
)

// ApplyInline inserts each anchor's body right after the anchor, wrapped in
// parentheses and without a number. Anchors already followed by their note
// are left alone. It returns the number of notes inserted.
func ApplyInline(anchors []Anchor) int {
	inserted := 0
	for _, a := range anchors {
		if a.Node == nil || a.Node.Parent == nil {
			continue
		}
		if next := a.Node.NextSibling; isInlineNoteFor(next, a.ID) {
			continue
		}
		dom.InsertAfter(a.Node, inlineNote(a))
		inserted++
	}
	return inserted
}

func inlineNote(a Anchor) *html.Node {
	span := dom.Element(atom.Span, "class", ClassInlineNote, AttrNoteFor, a.ID)
	span.AppendChild(dom.Text(" ("))
	if a.Content != nil {
		for c := a.Content.FirstChild; c != nil; c = c.NextSibling {
			span.AppendChild(dom.Clone(c))
		}
	}
	span.AppendChild(dom.Text(")"))
	return span
}

func isInlineNoteFor(n *html.Node, id string) bool {
	return dom.IsElement(n, atom.Span) && dom.HasClass(n, ClassInlineNote) && dom.Attr(n, AttrNoteFor) == id
}

// ClearInline removes every inline note below root and returns how many
// were removed.
func ClearInline(root *html.Node) int {
	return removeClass(root, ClassInlineNote)
}

func removeClass(root *html.Node, class string) int {
	if root == nil {
		return 0
	}
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if dom.HasClass(c, class) {
				doomed = append(doomed, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	removed := 0
	for _, n := range doomed {
		if dom.Remove(n) {
			removed++
		}
	}
	return removed
}

// PruneInline removes inline notes below root whose anchor is not in keep.
func PruneInline(root *html.Node, keep map[string]bool) int {
	if root == nil {
		return 0
	}
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if dom.HasClass(c, ClassInlineNote) {
				if !keep[dom.Attr(c, AttrNoteFor)] || !followsAnchor(c) {
					doomed = append(doomed, c)
				}
				continue
			}
			walk(c)
		}
	}
	walk(root)
	for _, n := range doomed {
		dom.Remove(n)
	}
	return len(doomed)
}

// followsAnchor reports whether an inline note sits right after the anchor
// it belongs to.
func followsAnchor(note *html.Node) bool {
	prev := note.PrevSibling
	return prev != nil && dom.Attr(prev, AttrRefID) == dom.Attr(note, AttrNoteFor)
}
