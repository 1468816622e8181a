package measure

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/fonts"
)

// Inline is the word sequence of an inline formatting context. Marks maps
// each element met during collection to the index of the first word at or
// after its start.
type Inline struct {
	Words []Word
	Marks map[*html.Node]int
	cur   []Piece
}

// Collector gathers words from inline content.
type Collector struct {
	// Skip, when set, prunes nodes and their subtrees.
	Skip func(*html.Node) bool
}

// Collect gathers the words of nodes.
func (c Collector) Collect(nodes []*html.Node, base fonts.Style) Inline {
	in := Inline{Marks: map[*html.Node]int{}}
	for _, n := range nodes {
		c.collect(&in, n, base)
	}
	c.flush(&in)
	return in
}

func (c Collector) collectChildren(in *Inline, n *html.Node, style fonts.Style) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.collect(in, ch, style)
	}
}

func (c Collector) collect(in *Inline, n *html.Node, style fonts.Style) {
	if c.Skip != nil && c.Skip(n) {
		return
	}
	switch n.Type {
	case html.TextNode:
		c.text(in, n.Data, style)
	case html.ElementNode:
		if in.Marks != nil {
			in.Marks[n] = len(in.Words)
		}
		switch n.DataAtom {
		case atom.Br:
			c.flush(in)
			in.Words = append(in.Words, Word{Break: true})
			return
		case atom.B, atom.Strong, atom.Th:
			style = fonts.Bold
		case atom.I, atom.Em, atom.Cite:
			style = fonts.Italic
		case atom.Code, atom.Kbd, atom.Samp, atom.Tt:
			style = fonts.Mono
		}
		c.collectChildren(in, n, style)
	}
}

func (c Collector) text(in *Inline, s string, style fonts.Style) {
	if s == "" {
		return
	}
	if startsSpace(s) {
		c.flush(in)
	}
	fields := strings.Fields(s)
	for i, f := range fields {
		if i > 0 {
			c.flush(in)
		}
		in.cur = append(in.cur, Piece{Text: f, Style: style})
	}
	if endsSpace(s) {
		c.flush(in)
	}
}

func (c Collector) flush(in *Inline) {
	if len(in.cur) == 0 {
		return
	}
	in.Words = append(in.Words, Word{Pieces: in.cur})
	in.cur = nil
}

func startsSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func endsSpace(s string) bool {
	r := []rune(s)
	return len(r) > 0 && unicode.IsSpace(r[len(r)-1])
}
