package engine

import (
	"testing"

	"golang.org/x/net/html/atom"

	"github.com/matzehuels/marginalia/pkg/dom"
)

func TestImageTracker(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><main id="content">
<img src="sized.png" width="10" height="10">
<img src="a.png"><img src="a.png"><img src="b.png">
</main></body></html>`, dom.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	tr := NewImageTracker()
	if added := tr.Scan(doc.Content()); added != 3 {
		t.Fatalf("Scan = %d, want 3 pending", added)
	}
	if added := tr.Scan(doc.Content()); added != 0 {
		t.Errorf("rescan added %d", added)
	}

	matched, settled := tr.Resolve("a.png", 640, 480, true)
	if matched != 2 || settled {
		t.Errorf("Resolve(a) = %d, %v", matched, settled)
	}
	img := dom.FindOne(doc.Root(), "//img[@src='a.png']")
	if dom.Attr(img, "height") != "480" || dom.Attr(img, AttrImageState) != StateLoaded {
		t.Errorf("attrs = %v", img.Attr)
	}

	matched, settled = tr.Resolve("b.png", 0, 0, false)
	if matched != 1 || !settled {
		t.Errorf("Resolve(b) = %d, %v", matched, settled)
	}
	if _, settled := tr.Resolve("b.png", 0, 0, false); settled {
		t.Error("settled twice")
	}
}

func TestImageTrackerForgetsDetached(t *testing.T) {
	doc, _ := dom.ParseString(`<html><body><main id="content"><img src="x.png"></main></body></html>`, dom.DefaultSelectors())
	tr := NewImageTracker()
	tr.Scan(doc.Content())
	dom.Remove(dom.FindOne(doc.Root(), "//img"))
	tr.Scan(doc.Content())
	if tr.Pending() != 0 {
		t.Errorf("pending = %d after removal", tr.Pending())
	}

	doc.Content().AppendChild(dom.Element(atom.Img, "src", "y.png"))
	if added := tr.Scan(doc.Content()); added != 1 {
		t.Errorf("added = %d", added)
	}
}
