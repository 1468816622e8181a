package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/cache"
	"github.com/matzehuels/marginalia/pkg/errors"
)

const post = `<html><body>
<main id="content">
<p>Lead <span note-ref-id="one" numbered="true">claim<span class="reference-content">Source one</span></span>.</p>
<p><img src="chart.png"></p>
<p>Next <span note-ref-id="two" numbered="true">claim<span class="reference-content">Source two</span></span>.</p>
</main>
</body></html>`

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"html", false},
		{"svg", false},
		{"png", false},
		{"pdf", false},
		{"json", false},
		{"invalid", true},
		{"SVG", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateFormats(t *testing.T) {
	if err := ValidateFormats([]string{"svg", "json"}); err != nil {
		t.Errorf("Valid formats should pass: %v", err)
	}
	if err := ValidateFormats([]string{"svg", "invalid"}); err == nil {
		t.Error("Invalid format should fail")
	}
	// Empty slice is valid
	if err := ValidateFormats(nil); err != nil {
		t.Errorf("Empty formats should pass: %v", err)
	}
}

func TestValidateAndSetDefaults(t *testing.T) {
	formats := []string{" JSON ", "json"}
	opts := Options{Source: "post.html", Formats: formats}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if opts.Width != DefaultWidth {
		t.Errorf("Width = %v, want %v", opts.Width, DefaultWidth)
	}
	if opts.Layout.MinSpacing != annotate.DefaultMinSpacing {
		t.Errorf("MinSpacing = %v", opts.Layout.MinSpacing)
	}
	if len(opts.Formats) != 1 || opts.Formats[0] != "json" {
		t.Errorf("Formats = %v, want [json]", opts.Formats)
	}
	if formats[0] != " JSON " {
		t.Error("caller's format slice was modified")
	}
	if opts.Logger == nil {
		t.Error("Logger not defaulted")
	}

	bad := []Options{
		{},
		{Source: "x", Width: -1},
		{Source: "x", Mode: "sideways"},
		{Source: "x", Formats: []string{"gif"}},
		{Source: "x", Theme: "neon"},
		{Source: "x", Layout: annotate.Options{RailOffset: math.Inf(1)}},
	}
	for i, o := range bad {
		if err := o.ValidateAndSetDefaults(); err == nil {
			t.Errorf("case %d: accepted %+v", i, o)
		}
	}
}

func writePost(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 300, 150))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chart.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "post.html")
	if err := os.WriteFile(path, []byte(post), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type annotations struct {
	Mode        string `json:"mode"`
	Annotations []struct {
		ID     string  `json:"id"`
		Number int     `json:"number"`
		Offset float64 `json:"offset"`
		Height float64 `json:"height"`
	} `json:"annotations"`
}

func TestLayoutResolvesImages(t *testing.T) {
	path := writePost(t)
	data, base, err := Load(context.Background(), nil, Options{Source: path})
	if err != nil {
		t.Fatal(err)
	}

	_, res, stats, err := Layout(context.Background(), data, base, Options{Source: path})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if stats.Images != 1 || stats.FailedImages != 0 {
		t.Errorf("images = %d failed = %d", stats.Images, stats.FailedImages)
	}
	if len(res.Notes) != 2 {
		t.Fatalf("notes = %d", len(res.Notes))
	}
	// The chart sits between the anchors, so the second note is at least
	// its height below the first.
	if gap := res.Notes[1].Position - res.Notes[0].Position; gap < 150 {
		t.Errorf("anchor gap = %v, image height not applied", gap)
	}
}

func TestRunnerExecute(t *testing.T) {
	path := writePost(t)
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(c, nil, nil)
	defer runner.Close()

	opts := Options{Source: path, Formats: []string{"json", "html"}}
	res, err := runner.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.CacheInfo.RenderHit {
		t.Error("first run hit the cache")
	}
	if res.Document == nil || res.Stats.Annotations != 2 {
		t.Errorf("document = %v annotations = %d", res.Document != nil, res.Stats.Annotations)
	}

	var out annotations
	if err := json.Unmarshal(res.Artifacts["json"], &out); err != nil {
		t.Fatal(err)
	}
	if out.Mode != "rail" || len(out.Annotations) != 2 || out.Annotations[1].Number != 2 {
		t.Errorf("json = %+v", out)
	}
	if !strings.Contains(string(res.Artifacts["html"]), `id="notes-container"`) {
		t.Error("html artifact has no rail")
	}

	again, err := runner.Execute(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !again.CacheInfo.RenderHit {
		t.Error("second run missed the cache")
	}
	if !bytes.Equal(again.Artifacts["json"], res.Artifacts["json"]) {
		t.Error("cached json differs")
	}

	opts.Width = 800
	narrow, err := runner.Execute(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if narrow.CacheInfo.RenderHit {
		t.Error("different width served from cache")
	}
	if narrow.Pass.Mode != annotate.ModeInline {
		t.Errorf("mode = %s, want inline", narrow.Pass.Mode)
	}
}

type countingCache struct {
	cache.Cache
	sets atomic.Int32
}

func (c *countingCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.sets.Add(1)
	return c.Cache.Set(ctx, key, data, ttl)
}

func TestRunnerRefresh(t *testing.T) {
	c := &countingCache{Cache: cache.NewNullCache()}
	runner := NewRunner(c, nil, nil)
	opts := Options{Document: []byte(post), Formats: []string{"json"}, Refresh: true}
	if _, err := runner.Execute(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if n := c.sets.Load(); n != 1 {
		t.Errorf("sets = %d, want 1", n)
	}
}

func TestLoadMissing(t *testing.T) {
	_, _, err := Load(context.Background(), nil, Options{Source: filepath.Join(t.TempDir(), "nope.html")})
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
