// Package retention evicts artifacts whose TTL has elapsed.
package retention

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/platform"
	"github.com/ytget/yt-converter/internal/store"
)

const tracerName = "github.com/ytget/yt-converter/internal/retention"

// Config holds sweeper settings
type Config struct {
	// Root is the download area; it is never removed
	Root string
	TTL  time.Duration
	// RetainOnError keeps a record whose file could not be deleted so the
	// next sweep retries it
	RetainOnError bool
}

// Sweeper removes expired artifacts and their records. Sweeps never overlap.
type Sweeper struct {
	mu            sync.Mutex
	store         store.Store
	root          string
	ttl           time.Duration
	retainOnError bool
	metrics       metrics.Recorder
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// New creates a sweeper over st
func New(cfg Config, st store.Store, rec metrics.Recorder, logger *slog.Logger) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = model.DefaultTTL
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Sweeper{
		store:         st,
		root:          root,
		ttl:           cfg.TTL,
		retainOnError: cfg.RetainOnError,
		metrics:       rec,
		logger:        logger.With("component", "retention"),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
}

// TTL returns the configured artifact lifetime
func (s *Sweeper) TTL() time.Duration {
	return s.ttl
}

// Sweep evicts every record older than the TTL at now and returns how many
// records were removed. Per-entry failures are logged, never returned.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(ctx, now)
}

// TrySweep runs a sweep unless one is already in progress.
func (s *Sweeper) TrySweep(ctx context.Context) (int, bool) {
	if !s.mu.TryLock() {
		return 0, false
	}
	defer s.mu.Unlock()
	return s.sweep(ctx, s.now()), true
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", interval, "ttl", s.ttl)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) int {
	ctx, span := s.tracer.Start(ctx, "retention.Sweep")
	defer span.End()

	records, err := s.store.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to list artifacts", "error", err)
		return 0
	}

	var expired []string
	for _, rec := range records {
		if !rec.Expired(now, s.ttl) {
			continue
		}
		if !s.deleteFiles(rec) && s.retainOnError {
			continue
		}
		expired = append(expired, rec.Token)
	}

	if len(expired) == 0 {
		s.metrics.SetArtifacts(len(records))
		return 0
	}

	if err := s.store.RemoveAll(ctx, expired); err != nil {
		span.RecordError(err)
		s.logger.Error("failed to remove expired records", "count", len(expired), "error", err)
		return 0
	}

	span.SetAttributes(attribute.Int("evicted", len(expired)))
	s.metrics.AddEvicted(len(expired))
	s.metrics.SetArtifacts(len(records) - len(expired))
	s.logger.Info("evicted expired artifacts", "count", len(expired))
	return len(expired)
}

// deleteFiles removes the artifact file and its job directory when empty.
// It reports whether the file is gone.
func (s *Sweeper) deleteFiles(rec model.ArtifactRecord) bool {
	ok := true
	if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to delete artifact file", "token", rec.Token, "error", err)
		ok = false
	}

	dir := filepath.Dir(rec.FilePath)
	if s.isProtected(dir) {
		return ok
	}
	if _, err := platform.RemoveDirIfEmpty(dir); err != nil {
		s.logger.Warn("failed to delete job directory", "token", rec.Token, "error", err)
	}
	return ok
}

// isProtected reports whether dir must never be removed
func (s *Sweeper) isProtected(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return true
	}
	return abs == s.root || abs == filepath.Dir(abs)
}
