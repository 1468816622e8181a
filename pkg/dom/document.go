package dom

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/errors"
)

// Default region selectors.
const (
	DefaultContentSelector = "//*[@id='content']"
	DefaultRailSelector    = "//*[@id='notes-container']"

	// RailID is the id given to a rail container created by [Document.EnsureRail].
	RailID = "notes-container"
)

// contentFallbacks are tried in order when the default content selector has
// no match. A custom selector without a match yields no content region.
var contentFallbacks = []string{"//article", "//body"}

// Selectors addresses the regions of a document with XPath expressions.
type Selectors struct {
	Content string `json:"content" toml:"content_selector"`
	Rail    string `json:"rail" toml:"rail_selector"`
}

// DefaultSelectors returns the selectors used by the blog layout.
func DefaultSelectors() Selectors {
	return Selectors{Content: DefaultContentSelector, Rail: DefaultRailSelector}
}

// Validate checks that both selectors compile.
func (s Selectors) Validate() error {
	probe := &html.Node{Type: html.DocumentNode}
	for _, expr := range []string{s.Content, s.Rail} {
		if expr == "" {
			continue
		}
		if _, err := htmlquery.QueryAll(probe, expr); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid selector %q", expr)
		}
	}
	return nil
}

func (s Selectors) withDefaults() Selectors {
	if s.Content == "" {
		s.Content = DefaultContentSelector
	}
	if s.Rail == "" {
		s.Rail = DefaultRailSelector
	}
	return s
}

// Document is a parsed HTML page together with its region selectors.
// It is not safe for concurrent use; the engine confines it to one goroutine.
type Document struct {
	root *html.Node
	sel  Selectors
}

// Parse reads an HTML document from r.
func Parse(r io.Reader, sel Selectors) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse html")
	}
	return &Document{root: root, sel: sel.withDefaults()}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string, sel Selectors) (*Document, error) {
	return Parse(strings.NewReader(s), sel)
}

// ReadFile parses the HTML document stored at path.
func ReadFile(path string, sel Selectors) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open %s", path)
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f, sel)
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Selectors returns the region selectors in effect.
func (d *Document) Selectors() Selectors { return d.sel }

// Content returns the primary content region, or nil when the document has none.
func (d *Document) Content() *html.Node {
	if n := d.queryOne(d.sel.Content); n != nil {
		return n
	}
	if d.sel.Content != DefaultContentSelector {
		return nil
	}
	for _, expr := range contentFallbacks {
		if n := d.queryOne(expr); n != nil {
			return n
		}
	}
	return nil
}

// Rail returns the rail container, or nil when the document has none.
func (d *Document) Rail() *html.Node {
	return d.queryOne(d.sel.Rail)
}

// EnsureRail returns the rail container, creating an <aside id="notes-container">
// right after the content region when none exists. The boolean reports whether
// a new container was created. It returns nil when there is no content region.
func (d *Document) EnsureRail() (*html.Node, bool) {
	if rail := d.Rail(); rail != nil {
		return rail, false
	}
	content := d.Content()
	if content == nil || content.Parent == nil {
		return nil, false
	}
	rail := Element(atom.Aside, "id", RailID)
	InsertAfter(content, rail)
	return rail, true
}

// Find returns every node below the root matching expr, in document order.
func (d *Document) Find(expr string) ([]*html.Node, error) {
	return htmlquery.QueryAll(d.root, expr)
}

// Images returns the <img> elements inside the content region.
func (d *Document) Images() []*html.Node {
	content := d.Content()
	if content == nil {
		return nil
	}
	return FindAll(content, ".//img")
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HTML returns the serialised document.
func (d *Document) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{root: Clone(d.root), sel: d.sel}
}

func (d *Document) queryOne(expr string) *html.Node {
	if expr == "" {
		return nil
	}
	n, err := htmlquery.Query(d.root, expr)
	if err != nil {
		return nil
	}
	return n
}
