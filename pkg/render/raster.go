package render

import "github.com/matzehuels/marginalia/pkg/engine"

// PNGOption configures [RenderPNG].
type PNGOption func(*pngRenderer)

type pngRenderer struct {
	svgOpts []SVGOption
	scale   float64
}

// WithPNGSVGOptions passes options through to the underlying SVG renderer.
func WithPNGSVGOptions(opts ...SVGOption) PNGOption {
	return func(r *pngRenderer) { r.svgOpts = opts }
}

// WithScale sets the PNG scale factor (default 2.0 for 2x resolution).
func WithScale(s float64) PNGOption {
	return func(r *pngRenderer) { r.scale = s }
}

// RenderPNG renders the pass as PNG via SVG conversion.
func RenderPNG(res engine.Result, opts ...PNGOption) ([]byte, error) {
	r := pngRenderer{scale: 2.0}
	for _, opt := range opts {
		opt(&r)
	}
	svg, err := RenderSVG(res, r.svgOpts...)
	if err != nil {
		return nil, err
	}
	return ToPNG(svg, r.scale)
}

// RenderPDF renders the pass as PDF via SVG conversion.
func RenderPDF(res engine.Result, opts ...SVGOption) ([]byte, error) {
	svg, err := RenderSVG(res, opts...)
	if err != nil {
		return nil, err
	}
	return ToPDF(svg)
}
