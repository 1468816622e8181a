// Package sanitize copies annotation bodies into small, inert HTML trees.
//
// Annotation content arrives as arbitrary markup (a hidden child, a legacy
// attribute holding an HTML string, or the anchor's own body). [Tree] and
// [Fragment] rebuild it from an allow-list of inline elements and attributes
// so that nothing executable reaches the rail or the inline flow.
package sanitize

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
)

// allowed maps permitted elements to the attributes they may keep.
var allowed = map[atom.Atom][]string{
	atom.A:      {"href", "title"},
	atom.Abbr:   {"title"},
	atom.B:      nil,
	atom.Br:     nil,
	atom.Cite:   nil,
	atom.Code:   {"class"},
	atom.Del:    nil,
	atom.Em:     nil,
	atom.I:      nil,
	atom.Kbd:    nil,
	atom.Mark:   nil,
	atom.Q:      nil,
	atom.S:      nil,
	atom.Small:  nil,
	atom.Span:   {"class"},
	atom.Strong: nil,
	atom.Sub:    nil,
	atom.Sup:    nil,
	atom.U:      nil,
}

// dropped elements are removed together with their subtree.
var dropped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Template: true,
	atom.Noscript: true,
	atom.Form:     true,
	atom.Input:    true,
	atom.Button:   true,
	atom.Textarea: true,
	atom.Select:   true,
	atom.Svg:      true,
	atom.Math:     true,
}

var safeSchemes = map[string]bool{"": true, "http": true, "https": true, "mailto": true}

// Tree returns a detached <span> holding a sanitised copy of the children of n.
// Nodes for which skip returns true are left out together with their subtree.
func Tree(n *html.Node, skip func(*html.Node) bool) *html.Node {
	root := dom.Element(atom.Span)
	if n == nil {
		return root
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		copyInto(root, c, skip)
	}
	return root
}

// Fragment parses s as inline HTML and returns its sanitised copy.
func Fragment(s string) (*html.Node, error) {
	nodes, err := dom.ParseFragment(s)
	if err != nil {
		return nil, err
	}
	holder := dom.Element(atom.Span)
	for _, n := range nodes {
		holder.AppendChild(n)
	}
	return Tree(holder, nil), nil
}

// IsEmpty reports whether a sanitised tree carries neither text nor elements.
func IsEmpty(n *html.Node) bool {
	if n == nil {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		}
	}
	return true
}

func copyInto(parent, n *html.Node, skip func(*html.Node) bool) {
	if skip != nil && skip(n) {
		return
	}
	switch n.Type {
	case html.TextNode:
		parent.AppendChild(dom.Text(n.Data))
	case html.ElementNode:
		if dropped[n.DataAtom] {
			return
		}
		attrs, ok := allowed[n.DataAtom]
		if !ok {
			// Unknown element: keep its content, lose the wrapper.
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				copyInto(parent, c, skip)
			}
			return
		}
		el := dom.Element(n.DataAtom)
		for _, key := range attrs {
			if !dom.HasAttr(n, key) {
				continue
			}
			val := dom.Attr(n, key)
			if key == "href" && !safeURL(val) {
				continue
			}
			dom.SetAttr(el, key, val)
		}
		parent.AppendChild(el)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			copyInto(el, c, skip)
		}
	}
}

func safeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return safeSchemes[strings.ToLower(u.Scheme)]
}
