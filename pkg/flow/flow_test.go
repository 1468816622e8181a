package flow

import (
	"strings"
	"testing"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/measure"
)

func layout(t *testing.T, body string, width float64) (*dom.Document, *Geometry, float64) {
	t.Helper()
	doc, err := dom.ParseString(`<html><body><main id="content">`+body+`</main></body></html>`, dom.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	ts, err := measure.NewTypesetter(measure.Font{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ts.Close() })
	return doc, Layout(ts, doc.Content(), Options{Width: width}), ts.LineHeight()
}

func top(t *testing.T, doc *dom.Document, g *Geometry, id string) float64 {
	t.Helper()
	n := dom.FindOne(doc.Root(), "//*[@id='"+id+"']")
	if n == nil {
		t.Fatalf("no element %q", id)
	}
	y, ok := g.Top(n)
	if !ok {
		t.Fatalf("element %q not laid out", id)
	}
	return y
}

func TestParagraphsStack(t *testing.T) {
	doc, g, lh := layout(t, `<p id="a">first</p><p id="b">second</p>`, 600)
	if got := top(t, doc, g, "a"); got != 0 {
		t.Errorf("a = %v, want 0", got)
	}
	if got, want := top(t, doc, g, "b"), lh+DefaultBlockGap; got != want {
		t.Errorf("b = %v, want %v", got, want)
	}
	if len(g.Blocks) != 2 {
		t.Errorf("blocks = %d", len(g.Blocks))
	}
}

func TestInlineAnchorLine(t *testing.T) {
	words := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	doc, g, lh := layout(t, `<p>`+words+`<span id="anchor">note</span></p>`, 200)
	got := top(t, doc, g, "anchor")
	if got < 2*lh {
		t.Errorf("anchor top = %v, expected a later line", got)
	}
	if rem := got / lh; rem != float64(int(rem)) {
		t.Errorf("anchor top %v is not on a line boundary", got)
	}
}

func TestImagesAndDiagrams(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"pending image", `<img src="x.png"><p id="after">x</p>`, 0},
		{"sized image", `<img src="x.png" width="100" height="50"><p id="after">x</p>`, 50 + DefaultBlockGap},
		{"scaled image", `<img src="x.png" width="1200" height="600"><p id="after">x</p>`, 300 + DefaultBlockGap},
		{"unrendered diagram", `<div class="mermaid">graph</div><p id="after">x</p>`, 0},
		{"rendered diagram", `<div class="mermaid" data-rendered-height="80">graph</div><p id="after">x</p>`, 80 + DefaultBlockGap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, g, _ := layout(t, tt.body, 600)
			if got := top(t, doc, g, "after"); got != tt.want {
				t.Errorf("after = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHiddenContentTakesNoSpace(t *testing.T) {
	doc, g, _ := layout(t, `<p hidden>gone</p><span class="reference-content">also gone</span><p id="p">x</p>`, 600)
	if got := top(t, doc, g, "p"); got != 0 {
		t.Errorf("p = %v, want 0", got)
	}
}

func TestImageHeight(t *testing.T) {
	img := dom.Element(0)
	dom.SetAttr(img, "width", "400px")
	dom.SetAttr(img, "height", "200")
	if got := ImageHeight(img, 200); got != 100 {
		t.Errorf("ImageHeight = %v, want 100", got)
	}
}
