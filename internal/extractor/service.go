package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/platform"
	"github.com/ytget/yt-converter/internal/transcode"
)

const tracerName = "github.com/ytget/yt-converter/internal/extractor"

// Config holds the extractor settings
type Config struct {
	// YtDlpPath overrides the yt-dlp executable
	YtDlpPath string
	// FFmpegPath is handed to yt-dlp and the transcoder
	FFmpegPath  string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Service implements Fetcher on top of yt-dlp
type Service struct {
	run       runner
	converter transcode.Converter
	retry     retryPolicy
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewService creates a yt-dlp backed extractor
func NewService(cfg Config, converter transcode.Converter, logger *slog.Logger) *Service {
	return newService(ytdlpRunner{executable: cfg.YtDlpPath, ffmpegPath: cfg.FFmpegPath}, converter, cfg, logger)
}

func newService(r runner, converter transcode.Converter, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	logger = logger.With("component", "extractor")
	return &Service{
		run:       r,
		converter: converter,
		retry:     retryPolicy{maxAttempts: cfg.MaxAttempts, delay: cfg.RetryDelay, logger: logger},
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Fetch implements Fetcher
func (s *Service) Fetch(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "extractor.Fetch", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("format", req.Format.Wire()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(model.KindOf(err)))
		}
		span.End()
	}()

	const op = "extractor.Fetch"
	selectors := Selectors(req.Format)
	if len(selectors) == 0 {
		return Result{}, model.NewError(model.KindInvalidRequest, op, "Invalid format", nil)
	}

	title, err := s.probe(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if err := s.download(ctx, req, selectors); err != nil {
		return Result{}, err
	}

	path, err := s.finalize(ctx, req)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("fetched", "job", req.JobID, "title", title, "file", filepath.Base(path))
	return Result{FilePath: path, Title: title}, nil
}

// probe resolves the source title, retrying transient failures
func (s *Service) probe(ctx context.Context, req Request) (string, error) {
	var title string
	attempts, err := s.retry.do(ctx, "probe", func(ctx context.Context) error {
		_, span := s.tracer.Start(ctx, "extractor.probe")
		defer span.End()

		t, err := s.run.Probe(ctx, req.URL)
		if err != nil {
			span.RecordError(err)
			return err
		}
		title = t
		return nil
	})
	if err != nil {
		return "", model.NewError(model.KindSourceUnresolvable, "extractor.probe",
			"Could not retrieve video information",
			fmt.Errorf("after %d attempts: %w", attempts, err))
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = model.FallbackTitle(req.JobID)
	}
	return title, nil
}

// download tries each selector in priority order until one succeeds
func (s *Service) download(ctx context.Context, req Request, selectors []Selector) error {
	const op = "extractor.download"
	tmpl := outputTemplate(req.WorkDir, req.JobID)

	var failures []error
	for _, sel := range selectors {
		err := s.run.Download(ctx, req.URL, sel, tmpl)
		if err == nil {
			return nil
		}
		failures = append(failures, err)

		if !errors.Is(err, ErrFormatUnavailable) {
			if ctx.Err() != nil {
				return model.NewError(model.KindExtractionFailed, op, "Download was interrupted", errors.Join(failures...))
			}
			msg := "Failed to download media"
			if d := clientDetail(err, req.WorkDir); d != "" {
				msg += ": " + d
			}
			return model.NewError(model.KindExtractionFailed, op, msg, errors.Join(failures...))
		}
		s.logger.Debug("format unavailable, trying next", "job", req.JobID, "selector", sel.Format)
	}

	return model.NewError(model.KindNoStreamAvailable, op,
		"No suitable stream found for the requested format", errors.Join(failures...))
}

// maxDetailLen caps the yt-dlp summary passed on to clients
const maxDetailLen = 200

// clientDetail returns the yt-dlp stderr summary carried by err. Lines that
// mention the job directory are dropped so no local path reaches a client.
func clientDetail(err error, workDir string) string {
	var re *RunError
	if !errors.As(err, &re) || re.Detail == "" {
		return ""
	}
	if workDir != "" && strings.Contains(re.Detail, workDir) {
		return ""
	}
	if len(re.Detail) > maxDetailLen {
		return strings.ToValidUTF8(re.Detail[:maxDetailLen], "")
	}
	return re.Detail
}

// finalize picks the produced file and normalises its container
func (s *Service) finalize(ctx context.Context, req Request) (string, error) {
	const op = "extractor.finalize"

	files, err := platform.FindMediaFiles(req.WorkDir)
	if err != nil {
		return "", model.NewError(model.KindExtractionFailed, op, "Download produced no file", err)
	}

	path := files[0]
	want := "." + req.Format.Extension()
	if strings.EqualFold(filepath.Ext(path), want) {
		s.removeOthers(files, path)
		return path, nil
	}
	if s.converter == nil {
		return "", model.NewError(model.KindExtractionFailed, op, "Downloaded file has an unexpected format",
			fmt.Errorf("got %s, want %s", filepath.Ext(path), want))
	}

	out, err := s.converter.Convert(ctx, path, req.Format)
	if err != nil {
		return "", model.NewError(model.KindExtractionFailed, op, "Failed to convert media", err)
	}
	s.removeOthers(files, out)
	return out, nil
}

// removeOthers deletes every listed file except keep, so a single media
// file remains. keep may itself be in paths when a stale file already had
// the target extension.
func (s *Service) removeOthers(paths []string, keep string) {
	keep = filepath.Clean(keep)
	for _, p := range paths {
		if filepath.Clean(p) == keep {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove intermediate file", "file", filepath.Base(p), "error", err)
		}
	}
}
