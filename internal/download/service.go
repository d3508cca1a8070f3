package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytget/yt-converter/internal/extractor"
	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/platform"
	"github.com/ytget/yt-converter/internal/store"
)

const tracerName = "github.com/ytget/yt-converter/internal/download"

// Defaults
const (
	DefaultMaxParallel = 2
	OutcomeSuccess     = "success"
)

// Config holds orchestrator settings
type Config struct {
	// Root is the download area holding one directory per job
	Root string
	// MaxParallel bounds simultaneous extractions
	MaxParallel int
	// FetchTimeout bounds a single extraction; zero means no limit
	FetchTimeout time.Duration
}

// Service orchestrates conversions
type Service struct {
	jobs       map[string]*model.Job
	jobsMutex  sync.RWMutex
	slots      chan struct{}
	root       string
	timeout    time.Duration
	fetcher    extractor.Fetcher
	store      store.Store
	metrics    metrics.Recorder
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newJobID   func() string
	newTokenID func() string
}

// NewService creates the orchestrator and the root download area.
func NewService(cfg Config, fetcher extractor.Fetcher, st store.Store, rec metrics.Recorder, logger *slog.Logger) (*Service, error) {
	if cfg.Root == "" {
		return nil, errors.New("download root is required")
	}
	if err := platform.CreateDirectoryIfNotExists(cfg.Root); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:       make(map[string]*model.Job),
		slots:      make(chan struct{}, cfg.MaxParallel),
		root:       cfg.Root,
		timeout:    cfg.FetchTimeout,
		fetcher:    fetcher,
		store:      st,
		metrics:    rec,
		logger:     logger.With("component", "download"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newJobID:   uuid.NewString,
		newTokenID: uuid.NewString,
	}, nil
}

// Root returns the download area
func (s *Service) Root() string {
	return s.root
}

// Submit validates a request, acquires the media and registers it under a
// fresh token. No token is issued when any step fails.
func (s *Service) Submit(ctx context.Context, rawURL, rawFormat string) (conv Conversion, err error) {
	url, format, err := ValidateRequest(rawURL, rawFormat)
	if err != nil {
		return Conversion{}, err
	}

	ctx, span := s.tracer.Start(ctx, "download.Submit", trace.WithAttributes(
		attribute.String("format", format.Wire()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(model.KindOf(err)))
		}
		span.End()
	}()

	job := &model.Job{
		ID:     s.newJobID(),
		URL:    url,
		Format: format,
		Status: model.JobStatusPending,
	}
	s.addJob(job)
	defer s.removeJob(job.ID)
	span.SetAttributes(attribute.String("job.id", job.ID))

	if err := s.acquireSlot(ctx); err != nil {
		s.finishJob(job, err)
		return Conversion{}, model.NewError(model.KindExtractionFailed, "download.Submit", "Conversion was cancelled", err)
	}
	defer s.releaseSlot()

	s.metrics.IncActiveJobs()
	defer s.metrics.DecActiveJobs()

	result, err := s.run(ctx, job)
	s.finishJob(job, err)
	s.metrics.ObserveConversion(format.Wire(), outcome(err), job.Duration().Seconds())
	if err != nil {
		s.logger.Error("conversion failed", "job", job.ID, "error", err)
		return Conversion{}, err
	}

	rec := model.ArtifactRecord{
		Token:       s.newTokenID(),
		FilePath:    result.FilePath,
		DisplayName: model.DisplayName(result.Title, format),
		CreatedAt:   s.now(),
		Format:      format,
		JobID:       job.ID,
		SourceURL:   url,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		msg := "Failed to register artifact"
		if errors.Is(err, store.ErrDuplicateToken) {
			msg = "Token collision"
		}
		return Conversion{}, model.NewError(model.KindStorageIO, "download.Submit", msg, err)
	}

	s.logger.Info("conversion completed", "job", job.ID, "token", rec.Token, "title", result.Title, "duration", job.Duration())
	return Conversion{Token: rec.Token, Title: result.Title, Format: format.Wire()}, nil
}

// run creates the job directory and invokes the extractor
func (s *Service) run(ctx context.Context, job *model.Job) (extractor.Result, error) {
	dir, err := platform.CreateJobDirectory(s.root, job.ID)
	if err != nil {
		return extractor.Result{}, model.NewError(model.KindStorageIO, "download.run", "Failed to prepare working directory", err)
	}

	s.jobsMutex.Lock()
	job.WorkDir = dir
	job.Status = model.JobStatusDownloading
	job.StartedAt = s.now()
	s.jobsMutex.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("starting conversion", "job", job.ID, "format", job.Format.Wire())
	result, err := s.fetcher.Fetch(ctx, extractor.Request{
		URL:     job.URL,
		Format:  job.Format,
		WorkDir: dir,
		JobID:   job.ID,
	})
	if err != nil {
		return extractor.Result{}, err
	}

	s.jobsMutex.Lock()
	job.Title = result.Title
	s.jobsMutex.Unlock()
	return result, nil
}

// acquireSlot waits for a free extraction slot or ctx cancellation
func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseSlot() {
	<-s.slots
}

func (s *Service) addJob(job *model.Job) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	s.jobs[job.ID] = job
}

func (s *Service) removeJob(id string) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	delete(s.jobs, id)
}

// finishJob records the terminal state of job
func (s *Service) finishJob(job *model.Job, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	if err != nil {
		job.Status = model.JobStatusError
		job.LastError = err.Error()
	} else {
		job.Status = model.JobStatusCompleted
	}
	job.FinishedAt = s.now()
}

// ActiveJobs returns the number of conversions pending or in progress
func (s *Service) ActiveJobs() int {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status.IsActive() {
			n++
		}
	}
	return n
}

// outcome labels a conversion result for metrics
func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(model.KindOf(err))
}
