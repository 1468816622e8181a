// Package engine keeps a document's margin notes laid out while it changes.
//
// An [Engine] owns a [dom.Document] and a [schedule.Scheduler]. Event sources
// report what happened (the viewport was resized, an image resolved, a
// diagram finished rendering, the content changed) and the engine turns each
// report into a state change plus a recompute request. The scheduler folds
// requests into at most one pass per frame. Every pass rebuilds the whole
// annotation set from the document:
//
//   - rail mode clears inline notes, discovers anchors, runs the greedy
//     layout and renders the result into the rail
//   - inline mode clears the rail, discovers anchors and injects inline notes
//
// Subscribers registered with [Engine.OnPass] receive each [Result] on the
// loop goroutine, together with the document, which they may read but must
// not retain.
package engine
