// Package images resolves the natural size of images referenced by a
// document, standing in for the browser's load events.
//
// Sources may be data URIs, paths relative to the document, or http(s)
// URLs. Raster formats are sniffed with image.DecodeConfig (PNG, JPEG, GIF,
// WebP, BMP, TIFF); SVG sizes come from the root element's width/height or
// viewBox. Remote lookups go through [httputil.Client] and are remembered in
// an [httputil.Cache].
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/httputil"
)

// DefaultConcurrency bounds parallel lookups in [Loader.ResolveAll].
const DefaultConcurrency = 8

// Size is an image's natural size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result is the outcome of resolving one source.
type Result struct {
	Src  string
	Size Size
	Err  error
}

// OK reports whether the size is usable.
func (r Result) OK() bool { return r.Err == nil && r.Size.Width > 0 && r.Size.Height > 0 }

// Loader resolves image sizes.
type Loader struct {
	// BaseDir resolves relative paths. Empty means the working directory.
	BaseDir string
	// Client fetches remote images. Nil disables remote lookups.
	Client *httputil.Client
	// Cache remembers remote sizes. Optional.
	Cache       *httputil.Cache
	Concurrency int
	Logger      *log.Logger
}

// Resolve returns the size of the image at src.
func (l *Loader) Resolve(ctx context.Context, src string) (Size, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return Size{}, errors.New(errors.ErrCodeInvalidInput, "empty image source")
	}
	if strings.HasPrefix(src, "data:") {
		data, err := decodeDataURI(src)
		if err != nil {
			return Size{}, err
		}
		return Decode(data)
	}

	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.remote(ctx, src)
	}
	if err == nil && u.Scheme != "" && u.Scheme != "file" {
		return Size{}, errors.New(errors.ErrCodeUnsupported, "unsupported image scheme %q", u.Scheme)
	}

	path := src
	if err == nil {
		path = u.Path
	}
	if err != nil || u.Scheme == "" {
		// Site-root sources like /img/a.png live under BaseDir, not the
		// filesystem root.
		rel := strings.TrimLeft(path, "/")
		if verr := errors.ValidatePath(rel); verr != nil {
			return Size{}, errors.Wrap(errors.ErrCodeInvalidPath, verr, "image %s", src)
		}
		path = filepath.Join(l.BaseDir, filepath.FromSlash(rel))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Size{}, errors.Wrap(errors.ErrCodeNotFound, err, "image %s", src)
		}
		return Size{}, err
	}
	return Decode(data)
}

func (l *Loader) remote(ctx context.Context, src string) (Size, error) {
	if l.Client == nil {
		return Size{}, errors.New(errors.ErrCodeUnsupported, "remote images disabled: %s", src)
	}
	var cached Size
	if l.Cache != nil {
		if ok, err := l.Cache.Get(src, &cached); ok && err == nil {
			return cached, nil
		}
	}
	data, err := l.Client.Fetch(ctx, src)
	if err != nil {
		return Size{}, err
	}
	size, err := Decode(data)
	if err != nil {
		return Size{}, err
	}
	if l.Cache != nil {
		if err := l.Cache.Set(src, size); err != nil && l.Logger != nil {
			l.Logger.Debug("image size not cached", "src", src, "err", err)
		}
	}
	return size, nil
}

// ResolveAll resolves every distinct source concurrently and calls fn with
// each result. Calls to fn are serialized. Individual failures are reported through fn; only context cancellation is returned.
func (l *Loader) ResolveAll(ctx context.Context, srcs []string, fn func(Result)) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := l.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)

	var mu sync.Mutex
	seen := map[string]bool{}
	for _, src := range srcs {
		if seen[src] {
			continue
		}
		seen[src] = true
		g.Go(func() error {
			size, err := l.Resolve(ctx, src)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil && l.Logger != nil {
				l.Logger.Warn("image failed", "src", src, "err", err)
			}
			mu.Lock()
			defer mu.Unlock()
			fn(Result{Src: src, Size: size, Err: err})
			return nil
		})
	}
	return g.Wait()
}

// Sink receives resolved sizes. *engine.Engine satisfies it.
type Sink interface {
	ImageResolved(src string, width, height int, ok bool)
}

// Feed resolves srcs and reports each outcome to sink.
func (l *Loader) Feed(ctx context.Context, srcs []string, sink Sink) error {
	return l.ResolveAll(ctx, srcs, func(r Result) {
		sink.ImageResolved(r.Src, r.Size.Width, r.Size.Height, r.OK())
	})
}

// Decode sniffs the size of encoded image data.
func Decode(data []byte) (Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return Size{Width: cfg.Width, Height: cfg.Height}, nil
	}
	if looksLikeSVG(data) {
		return decodeSVG(data)
	}
	return Size{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode image")
}

func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "malformed data uri")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "data uri")
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "data uri")
	}
	return []byte(s), nil
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("<svg"))
}

func decodeSVG(data []byte) (Size, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Size{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode svg")
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "svg" {
			continue
		}
		var w, h float64
		var viewBox string
		for _, a := range el.Attr {
			switch a.Name.Local {
			case "width":
				w = svgLength(a.Value)
			case "height":
				h = svgLength(a.Value)
			case "viewBox":
				viewBox = a.Value
			}
		}
		if (w <= 0 || h <= 0) && viewBox != "" {
			if f := strings.Fields(strings.ReplaceAll(viewBox, ",", " ")); len(f) == 4 {
				vw, _ := strconv.ParseFloat(f[2], 64)
				vh, _ := strconv.ParseFloat(f[3], 64)
				switch {
				case w > 0 && vw > 0:
					h = w * vh / vw
				case h > 0 && vh > 0:
					w = h * vw / vh
				default:
					w, h = vw, vh
				}
			}
		}
		if w <= 0 || h <= 0 {
			return Size{}, errors.New(errors.ErrCodeInvalidFormat, "svg without size")
		}
		return Size{Width: int(w + 0.5), Height: int(h + 0.5)}, nil
	}
	return Size{}, errors.New(errors.ErrCodeInvalidFormat, "no svg element")
}

func svgLength(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if strings.HasSuffix(s, "%") {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
