// Package dom wraps an HTML document as the live, positioned-element tree
// that the annotation engine reads and writes on every pass.
//
// The document is the only state: anchors, the content region and the rail
// are located with XPath queries ([github.com/antchfx/htmlquery]) each time
// they are needed, never cached across passes.
//
// # Regions
//
// A [Document] knows two regions:
//   - the content region, holding the primary reading flow and its anchors
//   - the rail, the side container that receives positioned annotations
//
// Both are addressed by [Selectors]. With the default content selector the
// region falls back to the first <article>, then <body>.
package dom
