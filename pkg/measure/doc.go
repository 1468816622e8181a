// Package measure typesets inline HTML into wrapped lines and reports the
// height a fragment occupies at a given width.
//
// A [Typesetter] holds one face per [fonts.Style] and is the off-screen
// renderer used for annotation heights: content is wrapped at the rail width
// with the numbering marker prefixed, and the resulting line count times the
// line height is the annotation's footprint. The same wrapping drives the
// content flow in package flow, so anchors and annotations agree on metrics.
//
// Typesetters are not safe for concurrent use.
package measure
