package render

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

const page = `<html><body>
<main id="content">
<h1>Title</h1>
<p>Intro <span note-ref-id="a" numbered="true">alpha<span class="reference-content">First <em>note</em></span></span> and
<span note-ref-id="b">beta<span class="reference-content">Aside</span></span>.</p>
<img src="fig.png" width="400" height="200" alt="figure">
<hr>
<pre>code line</pre>
</main>
<aside id="notes-container"></aside>
</body></html>`

func pass(t *testing.T, width float64) (engine.Result, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(page, dom.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(doc, engine.Options{Width: width, Frames: schedule.NewManualFrames()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	res, err := e.PassNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return res, doc
}

func TestRenderJSON(t *testing.T) {
	res, _ := pass(t, 1440)
	data, err := RenderJSON(res)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	var out jsonOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if out.Mode != "rail" {
		t.Errorf("Mode = %q, want rail", out.Mode)
	}
	if out.Width != 1440 {
		t.Errorf("Width = %v, want 1440", out.Width)
	}
	if len(out.Annotations) != 2 {
		t.Fatalf("Annotations = %d, want 2", len(out.Annotations))
	}
	a, b := out.Annotations[0], out.Annotations[1]
	if a.ID != "a" || a.Number == nil || *a.Number != 1 {
		t.Errorf("first = %+v, want id a number 1", a)
	}
	if b.Number != nil {
		t.Errorf("unnumbered note has number %d", *b.Number)
	}
	if a.Text != "First note" {
		t.Errorf("Text = %q", a.Text)
	}
	if a.HTML != "" {
		t.Errorf("HTML included without WithJSONHTML")
	}
	if b.Offset < a.Offset+a.Height+annotate.DefaultMinSpacing {
		t.Errorf("overlap: %+v then %+v", a, b)
	}
}

func TestRenderJSONOptions(t *testing.T) {
	res, _ := pass(t, 1440)
	data, err := RenderJSON(res, WithJSONIndent(), WithJSONHTML(), WithJSONStats())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("output not indented")
	}
	var out jsonOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Stats == nil || out.Stats.Seq != 1 || out.Stats.Reasons[0] != "initial" {
		t.Errorf("Stats = %+v", out.Stats)
	}
	if !strings.Contains(out.Annotations[0].HTML, "<em>note</em>") {
		t.Errorf("HTML = %q", out.Annotations[0].HTML)
	}
}

func TestRenderSVGRail(t *testing.T) {
	res, _ := pass(t, 1440)
	svg, err := RenderSVG(res, WithTitle("Post & notes"), WithLeaders())
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	s := string(svg)
	for _, want := range []string{
		`<svg xmlns="http://www.w3.org/2000/svg"`,
		`<title>Post &amp; notes</title>`,
		`class="margin-note" id="note-a"`,
		`class="margin-note" id="note-b"`,
		`>(1)</text>`,
		`font-style="italic">note</tspan>`,
		`stroke-dasharray="4 3"`,
		`>figure</text>`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if !strings.HasSuffix(s, "</svg>\n") {
		t.Error("svg not closed")
	}
}

func TestRenderSVGInline(t *testing.T) {
	res, _ := pass(t, 600)
	if res.Mode != annotate.ModeInline {
		t.Fatalf("mode = %s, want inline", res.Mode)
	}
	svg, err := RenderSVG(res, WithTheme(Dark))
	if err != nil {
		t.Fatal(err)
	}
	s := string(svg)
	if strings.Contains(s, `class="rail"`) {
		t.Error("inline render has a rail group")
	}
	if !strings.Contains(s, Dark.Background) {
		t.Error("dark background missing")
	}
	// Each text segment is its own tspan.
	open := strings.Index(s, ">(</tspan>")
	if open < 0 || !strings.Contains(s[open:], ">First</tspan>") {
		t.Error("inline note text missing from the column")
	}
}

func TestRenderHTML(t *testing.T) {
	_, doc := pass(t, 1440)
	out, err := RenderHTML(doc)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, `<sup class="note-marker">1</sup>`) {
		t.Error("marker missing")
	}
	if !strings.Contains(s, `class="margin-note"`) {
		t.Error("rail notes missing")
	}
}

func TestThemeByName(t *testing.T) {
	if th, err := ThemeByName(""); err != nil || th.Name != "light" {
		t.Errorf("default theme = %v, %v", th.Name, err)
	}
	if th, err := ThemeByName("dark"); err != nil || th != Dark {
		t.Errorf("dark = %v, %v", th.Name, err)
	}
	if _, err := ThemeByName("neon"); err == nil {
		t.Error("unknown theme accepted")
	}
}

func TestConvertRequiresBinary(t *testing.T) {
	old := ConvertBinary
	ConvertBinary = "marginalia-no-such-converter"
	defer func() { ConvertBinary = old }()

	if CanConvert() {
		t.Fatal("CanConvert reported a missing binary")
	}
	if _, err := ToPNG([]byte("<svg/>"), 2); err == nil {
		t.Error("ToPNG succeeded without converter")
	}
	if _, err := ToPDF([]byte("<svg/>")); err == nil {
		t.Error("ToPDF succeeded without converter")
	}
}
