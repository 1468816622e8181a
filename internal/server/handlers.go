package server

import (
	"bytes"
	"encoding/json"
	"html"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.Sessions(),
	})
}

// handlePost serves a post with the client script appended to its body.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := errors.ValidateSlug(slug); err != nil {
		writeError(w, err)
		return
	}
	data, err := os.ReadFile(s.postPath(slug))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, errors.Wrap(errors.ErrCodeNotFound, err, "post %s", slug))
			return
		}
		writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "read post %s", slug))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(withClientScript(data, "/ws/"+slug))
}

// handleLayout runs one pass at ?width= and returns the JSON placements.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := errors.ValidateSlug(slug); err != nil {
		writeError(w, err)
		return
	}
	width := s.cfg.Width
	if v := r.URL.Query().Get("width"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid width %q", v))
			return
		}
		width = f
	}
	mode, err := annotate.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.cfg.Runner.Execute(r.Context(), pipeline.Options{
		Source:    s.postPath(slug),
		Width:     width,
		Mode:      mode,
		Layout:    s.cfg.Layout,
		Font:      s.cfg.Font,
		Selectors: s.cfg.Selectors,
		Formats:   []string{pipeline.FormatJSON},
		Images:    s.cfg.Images,
		Logger:    s.logger,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if res.CacheInfo.RenderHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	_, _ = w.Write(res.Artifacts[pipeline.FormatJSON])
}

// withClientScript inserts the client script before the closing body tag,
// or appends it when there is none.
func withClientScript(page []byte, wsPath string) []byte {
	tag := []byte(`<script data-marginalia="` + html.EscapeString(wsPath) + `">` + clientScript + "</script>\n")
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return append(page, tag...)
	}
	out := make([]byte, 0, len(page)+len(tag))
	out = append(out, page[:i]...)
	out = append(out, tag...)
	return append(out, page[i:]...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"error": errors.UserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath, errors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
