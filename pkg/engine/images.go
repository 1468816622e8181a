package engine

import (
	"strconv"

	"golang.org/x/net/html"

	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/flow"
)

// Image load states recorded on <img> elements.
const (
	AttrImageState = "data-state"
	StateLoaded    = "loaded"
	StateError     = "error"
)

// ImageTracker follows the images of a document until each has loaded or
// failed. An image counts as complete when it already carries a height or
// a load state.
type ImageTracker struct {
	tracked map[*html.Node]bool
	pending map[*html.Node]bool
}

// NewImageTracker returns an empty tracker.
func NewImageTracker() *ImageTracker {
	return &ImageTracker{tracked: map[*html.Node]bool{}, pending: map[*html.Node]bool{}}
}

// Scan registers images under root that are not tracked yet, forgets images
// no longer attached to root, and returns how many new images are pending.
func (t *ImageTracker) Scan(root *html.Node) int {
	for n := range t.tracked {
		if !attachedTo(n, root) {
			delete(t.tracked, n)
			delete(t.pending, n)
		}
	}
	added := 0
	for _, img := range dom.FindAll(root, ".//img") {
		if t.tracked[img] {
			continue
		}
		t.tracked[img] = true
		if !imageComplete(img) {
			t.pending[img] = true
			added++
		}
	}
	return added
}

// Resolve records the outcome for every pending image whose src matches.
// On success the natural size is written as width and height attributes
// unless the markup already sets them. It reports how many images matched
// and whether this call emptied the pending set.
func (t *ImageTracker) Resolve(src string, width, height int, ok bool) (matched int, settled bool) {
	if len(t.pending) == 0 {
		return 0, false
	}
	for n := range t.pending {
		if dom.Attr(n, "src") != src {
			continue
		}
		if ok {
			dom.SetAttr(n, AttrImageState, StateLoaded)
			if width > 0 && height > 0 && !dom.HasAttr(n, "height") {
				dom.SetAttr(n, "height", strconv.Itoa(height))
				if !dom.HasAttr(n, "width") {
					dom.SetAttr(n, "width", strconv.Itoa(width))
				}
			}
		} else {
			dom.SetAttr(n, AttrImageState, StateError)
		}
		delete(t.pending, n)
		matched++
	}
	return matched, matched > 0 && len(t.pending) == 0
}

// Pending returns the number of images still loading.
func (t *ImageTracker) Pending() int { return len(t.pending) }

// PendingSources lists the src of every loading image.
func (t *ImageTracker) PendingSources() []string {
	seen := map[string]bool{}
	var out []string
	for n := range t.pending {
		src := dom.Attr(n, "src")
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}

// Reset forgets every image.
func (t *ImageTracker) Reset() {
	t.tracked = map[*html.Node]bool{}
	t.pending = map[*html.Node]bool{}
}

func imageComplete(n *html.Node) bool {
	if s := dom.Attr(n, AttrImageState); s == StateLoaded || s == StateError {
		return true
	}
	return flow.ImageHeight(n, 0) > 0
}

func attachedTo(n, root *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
