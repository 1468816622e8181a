// Package render turns a laid out document into output artifacts.
//
// # Formats
//
//   - HTML: the document after the pass, markers and notes in place ([RenderHTML])
//   - SVG: a static picture of the page ([RenderSVG])
//   - JSON: the annotation placements ([RenderJSON])
//   - PNG and PDF: the SVG converted with rsvg-convert ([RenderPNG], [RenderPDF])
//
// The SVG draws the reading column from the pass geometry on the left and,
// in rail mode, each annotation as a box in the rail at its computed offset.
// In inline mode the parenthesized notes are part of the column text.
//
//	res, _ := eng.PassNow(ctx)
//	svg, err := render.RenderSVG(res, render.WithLayout(opts), render.WithLeaders())
//	png, err := render.ToPNG(svg, 2)
//
// # Format Conversion
//
// [ToPDF] and [ToPNG] shell out to rsvg-convert from librsvg, which must be
// on PATH:
//
//	brew install librsvg        # macOS
//	apt install librsvg2-bin    # Debian/Ubuntu
package render
