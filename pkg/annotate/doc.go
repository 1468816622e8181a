// Package annotate discovers margin-note anchors in a document and places
// their annotation bodies.
//
// A pass is a read-compute-write cycle over the live document:
//
//  1. [Discover] collects anchors (elements carrying note-ref-id) from the
//     content region in document order, extracts and sanitises their content,
//     settles numbering markers and reads each anchor's vertical position
//     from a fresh flow layout.
//  2. In rail mode [Layout] runs a single greedy sweep that keeps annotations
//     in anchor order, aligned with their anchors where possible and pushed
//     down just enough to leave [Options.MinSpacing] between consecutive
//     bodies. [RenderRail] writes the result into the rail container.
//  3. In inline mode [ApplyInline] injects each body into the reading flow
//     right after its anchor instead.
//
// Nothing survives between passes except what is written into the document.
// Numbering restarts at 1 on every pass and only numbered anchors with
// content consume a number.
//
// # Markup
//
//	<span note-ref-id="n1" numbered="true">term<span class="reference-content">body</span></span>
//	<span note-ref-id="n2" content="legacy &lt;em&gt;body&lt;/em&gt;">term</span>
//
// Rail output:
//
//	<div class="margin-note" id="note-n1" data-note-for="n1" style="position:absolute;top:0px;width:275px">
//	  <span class="note-number">(1)</span> body
//	</div>
//
// Inline output:
//
//	<span class="inline-note" data-note-for="n1"> (body)</span>
package annotate
