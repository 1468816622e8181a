package annotate

import (
	"strings"
	"testing"

	"github.com/matzehuels/marginalia/pkg/dom"
)

func TestApplyInlineIdempotent(t *testing.T) {
	doc := parse(t, post)
	res, err := Discover(doc, DiscoverOptions{Mode: ModeInline})
	if err != nil {
		t.Fatal(err)
	}
	if got := ApplyInline(res.Anchors); got != 3 {
		t.Errorf("first ApplyInline = %d, want 3", got)
	}

	res, _ = Discover(doc, DiscoverOptions{Mode: ModeInline})
	if got := ApplyInline(res.Anchors); got != 0 {
		t.Errorf("second ApplyInline = %d, want 0", got)
	}

	notes, _ := doc.Find("//span[@class='" + ClassInlineNote + "']")
	if len(notes) != 3 {
		t.Fatalf("inline notes = %d", len(notes))
	}
	first := notes[0]
	if got := dom.TextContent(first); got != " (First note)" {
		t.Errorf("note text = %q", got)
	}
	if first.PrevSibling != res.Anchors[0].Node {
		t.Error("note not placed right after its anchor")
	}
	if strings.ContainsAny(dom.TextContent(first), "0123456789") {
		t.Error("inline note carries a number")
	}
}

func TestClearInline(t *testing.T) {
	doc := parse(t, post)
	res, _ := Discover(doc, DiscoverOptions{Mode: ModeInline})
	ApplyInline(res.Anchors)

	if got := ClearInline(doc.Root()); got != 3 {
		t.Errorf("ClearInline = %d, want 3", got)
	}
	if got := ClearInline(doc.Root()); got != 0 {
		t.Errorf("second ClearInline = %d, want 0", got)
	}
}

func TestRenderRail(t *testing.T) {
	doc := parse(t, post)
	res, _ := Discover(doc, DiscoverOptions{Mode: ModeRail})
	anns := Layout(res.Anchors, fixedHeights(40), DefaultOptions(), nil)

	rail := doc.Rail()
	RenderRail(rail, anns, DefaultOptions())
	RenderRail(rail, anns, DefaultOptions())

	notes := dom.FindAll(rail, "./div")
	if len(notes) != len(anns) {
		t.Fatalf("rail notes = %d, want %d", len(notes), len(anns))
	}
	first := notes[0]
	if dom.Attr(first, "id") != "note-n1" {
		t.Errorf("id = %q", dom.Attr(first, "id"))
	}
	if got := dom.Attr(first, "style"); got != "position:absolute;top:0px;width:275px" {
		t.Errorf("style = %q", got)
	}
	if got := dom.TextContent(first); got != "(1) First note" {
		t.Errorf("text = %q", got)
	}
	if got := dom.TextContent(notes[1]); got != "Legacy body" {
		t.Errorf("unnumbered text = %q", got)
	}
	if !strings.Contains(dom.Attr(rail, "style"), "position:relative") {
		t.Error("rail not made a positioning context")
	}
}

func TestModeExclusivity(t *testing.T) {
	doc := parse(t, post)
	opts := DefaultOptions()

	// rail pass, then inline pass, then rail again
	rail := func() {
		ClearInline(doc.Root())
		res, _ := Discover(doc, DiscoverOptions{Mode: ModeRail})
		RenderRail(doc.Rail(), Layout(res.Anchors, fixedHeights(10), opts, nil), opts)
	}
	inline := func() {
		ClearRail(doc.Rail())
		res, _ := Discover(doc, DiscoverOptions{Mode: ModeInline})
		ApplyInline(res.Anchors)
	}

	check := func(step string) {
		railNotes, _ := doc.Find("//div[@class='" + ClassMarginNote + "']")
		inlineNotes, _ := doc.Find("//span[@class='" + ClassInlineNote + "']")
		if len(railNotes) > 0 && len(inlineNotes) > 0 {
			t.Errorf("%s: %d rail and %d inline notes present", step, len(railNotes), len(inlineNotes))
		}
	}

	rail()
	check("rail")
	inline()
	check("inline")
	if got := countMarkers(t, doc); got != 0 {
		t.Errorf("inline pass left %d markers", got)
	}
	rail()
	check("rail again")
	if got := countMarkers(t, doc); got != 2 {
		t.Errorf("rail pass markers = %d, want 2", got)
	}
}
