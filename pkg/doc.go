// Package pkg holds the libraries behind marginalia.
//
// # Overview
//
// Marginalia places footnote-style annotations in a side rail next to the
// text they annotate, without overlaps, and folds them into the text when
// the viewport is too narrow for a rail.
//
//  1. [dom], [sanitize] - HTML document model and fragment parsing
//  2. [fonts], [measure], [flow] - typesetting and block geometry
//  3. [annotate] - anchor discovery, collision avoidance, rail and inline output
//  4. [schedule], [engine] - coalesced passes driven by resize, image and diagram events
//  5. [images] - image size resolution for local, data and remote images
//  6. [render], [pipeline], [cache] - artifacts and the cached batch pipeline
//  7. [config], [errors], [observability], [buildinfo], [httputil] - shared infrastructure
//
// # Data Flow
//
//	HTML document
//	     ↓
//	[dom] parse, locate content region and rail
//	     ↓
//	[images] resolve pending image sizes
//	     ↓
//	[engine] pass: [flow] geometry → [annotate] discover, place, apply
//	     ↓
//	[render] HTML / SVG / PNG / PDF / JSON
//
// # Quick Start
//
//	opts := pipeline.Options{Source: "post.html", Width: 1440, Formats: []string{"html", "json"}}
//	runner := pipeline.NewRunner(nil, nil, nil)
//	res, err := runner.Execute(ctx, opts)
//
// For live use, create an [engine.Engine], start it, and report events:
//
//	eng, _ := engine.New(doc, engine.Options{Width: 1440})
//	errc := eng.Start(ctx)
//	eng.OnPass(func(res engine.Result, doc *dom.Document) { ... })
//	eng.Resize(900)
package pkg
