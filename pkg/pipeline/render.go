package pipeline

import (
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/engine"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/render"
)

// Render generates output artifacts in the requested formats.
func Render(doc *dom.Document, res engine.Result, opts Options) (map[string][]byte, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	svgOpts, err := opts.svgOptions()
	if err != nil {
		return nil, err
	}

	artifacts := make(map[string][]byte, len(opts.Formats))
	var svg []byte
	svgFor := func() ([]byte, error) {
		if svg != nil {
			return svg, nil
		}
		out, err := render.RenderSVG(res, svgOpts...)
		if err != nil {
			return nil, err
		}
		svg = out
		return svg, nil
	}

	for _, format := range opts.Formats {
		var data []byte
		var err error

		switch format {
		case FormatHTML:
			data, err = render.RenderHTML(doc)
		case FormatJSON:
			data, err = render.RenderJSON(res, render.WithJSONIndent(), render.WithJSONHTML())
		case FormatSVG:
			data, err = svgFor()
		case FormatPNG:
			if data, err = svgFor(); err == nil {
				data, err = render.ToPNG(data, opts.Scale)
			}
		case FormatPDF:
			if data, err = svgFor(); err == nil {
				data, err = render.ToPDF(data)
			}
		default:
			err = errors.New(errors.ErrCodeUnsupported, "unsupported format: %s", format)
		}

		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeInternal
			}
			return nil, errors.Wrap(code, err, "render %s", format)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}
