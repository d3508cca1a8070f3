// Package server exposes the HTTP API.
package server

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ytget/yt-converter/internal/download"
	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/model"
)

//go:embed static/index.html
var staticFS embed.FS

// PlaylistLister lists the entries of a playlist URL
type PlaylistLister interface {
	List(ctx context.Context, rawURL string) (*model.Playlist, error)
}

// Sweeper evicts expired artifacts opportunistically
type Sweeper interface {
	TrySweep(ctx context.Context) (int, bool)
}

// ArtifactLister reports the registered artifacts
type ArtifactLister interface {
	Snapshot(ctx context.Context) ([]model.ArtifactRecord, error)
}

// Options configures HTTP behaviour
type Options struct {
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	SweepOnRequest bool
	MetricsPath    string
}

// Deps are the collaborators the handlers call into
type Deps struct {
	Converter download.Converter
	Resolver  download.Resolver
	Playlists PlaylistLister
	Artifacts ArtifactLister
	Sweeper   Sweeper
	Metrics   metrics.Recorder
	// MetricsHandler is mounted at Options.MetricsPath when set
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server wires routes and middleware
type Server struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	limiter *clientLimiter
}

// New creates a server
func New(opts Options, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		deps:   deps,
		logger: logger.With("component", "http"),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}
	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/convert", s.rateLimit(http.HandlerFunc(s.handleConvert)))
	mux.HandleFunc("GET /api/download/{token}", s.handleDownload)
	if s.deps.Playlists != nil {
		mux.Handle("POST /api/playlist", s.rateLimit(http.HandlerFunc(s.handlePlaylist)))
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.MetricsHandler != nil && s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, s.deps.MetricsHandler)
	}
	mux.HandleFunc("GET /{$}", s.handleIndex)

	var h http.Handler = mux
	h = s.sweep(h)
	h = s.cors(h)
	h = s.observe(h)
	h = s.recoverPanics(h)
	return h
}

// NewHTTPServer wraps handler in an http.Server with the given timeouts
func NewHTTPServer(addr string, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
