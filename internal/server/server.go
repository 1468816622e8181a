// Package server implements the live layout server.
//
// The server hands out posts from a directory and keeps one engine per
// browser session. The browser reports its viewport width, image sizes and
// rendered diagram heights over a websocket; after every pass the server
// answers with where each annotation goes.
//
// # Routes
//
//	GET /healthz              liveness and session count
//	GET /posts/{slug}         the post with the client script appended
//	GET /api/layout/{slug}    one-shot JSON placements (?width=N)
//	GET /ws/{slug}            websocket session
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/images"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/pipeline"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// ShutdownTimeout bounds how long Run waits for open requests on exit.
const ShutdownTimeout = 10 * time.Second

//go:embed client.js
var clientScript string

// Config configures a [Server].
type Config struct {
	// Addr is the listen address used by Run.
	Addr string
	// Dir holds the posts; /posts/{slug} serves Dir/{slug}.html.
	Dir string
	// Width is the viewport assumed until a session reports its own.
	Width float64
	// FrameInterval paces session engines.
	FrameInterval time.Duration

	Layout    annotate.Options
	Font      measure.Font
	Selectors dom.Selectors

	// Images resolves image sizes on the server. Nil leaves it to the
	// browser.
	Images *images.Loader
	// Runner serves /api/layout. Nil uses an uncached runner.
	Runner *pipeline.Runner
	Logger *log.Logger
}

// Server is the live layout server.
type Server struct {
	cfg    Config
	logger *log.Logger
	router chi.Router

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// New creates a server. Missing settings get defaults.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Width <= 0 {
		cfg.Width = pipeline.DefaultWidth
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = schedule.DefaultFrameInterval
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[uuid.UUID]*session),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/posts/{slug}", s.handlePost)
	r.Get("/api/layout/{slug}", s.handleLayout)
	r.Get("/ws/{slug}", s.handleSession)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the number of open websocket sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", s.cfg.Addr, "dir", s.cfg.Dir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		s.closeSessions()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown", "err", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) postPath(slug string) string {
	return filepath.Join(s.cfg.Dir, slug+".html")
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.logger.Debug("session opened", "session", sess.id, "slug", sess.slug, "sessions", n)
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.logger.Debug("session closed", "session", sess.id, "sessions", n)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		sess.close()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
