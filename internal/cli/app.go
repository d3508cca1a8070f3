package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ytget/yt-converter/internal/config"
	"github.com/ytget/yt-converter/internal/download"
	"github.com/ytget/yt-converter/internal/extractor"
	"github.com/ytget/yt-converter/internal/logging"
	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/platform"
	"github.com/ytget/yt-converter/internal/retention"
	"github.com/ytget/yt-converter/internal/server"
	"github.com/ytget/yt-converter/internal/store"
	"github.com/ytget/yt-converter/internal/tracing"
	"github.com/ytget/yt-converter/internal/transcode"
)

// app holds the wired components of a running process
type app struct {
	logger    *slog.Logger
	tracer    *tracing.Provider
	recorder  metrics.Recorder
	prom      *metrics.Prom
	store     store.Store
	service   *download.Service
	gateway   *download.Gateway
	playlists *platform.PlaylistService
	sweeper   *retention.Sweeper
}

// newApp builds every component from cfg
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{logger: logger, recorder: metrics.Noop{}}

	a.tracer, err = tracing.NewProvider(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.prom = metrics.NewProm()
		a.recorder = a.prom
	}

	a.store, err = store.Open(cfg.Store.Backend, cfg.Store.RedisURL, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	converter := transcode.NewService(
		transcode.WithFFmpegPath(cfg.Extractor.FFmpegPath),
		transcode.WithLogger(logger.With("component", "transcode")),
		transcode.WithProgress(func(path string, p transcode.Progress) {
			logger.Debug("transcode progress", "seconds", p.Seconds, "percent", p.Percent)
		}),
	)
	fetcher := extractor.NewService(extractor.Config{
		YtDlpPath:   cfg.Extractor.YtDlpPath,
		FFmpegPath:  cfg.Extractor.FFmpegPath,
		MaxAttempts: cfg.Extractor.MaxAttempts,
		RetryDelay:  cfg.Extractor.RetryDelay,
	}, converter, logger)

	a.service, err = download.NewService(download.Config{
		Root:         cfg.Downloads.Root,
		MaxParallel:  cfg.Downloads.MaxParallel,
		FetchTimeout: cfg.Extractor.Timeout,
	}, fetcher, a.store, a.recorder, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.gateway = download.NewGateway(a.store, a.recorder, logger)
	a.playlists = platform.NewPlaylistService()
	a.sweeper = retention.New(retention.Config{
		Root:          cfg.Downloads.Root,
		TTL:           cfg.Retention.TTL,
		RetainOnError: cfg.Retention.RetainOnError,
	}, a.store, a.recorder, logger)

	return a, nil
}

// handler builds the HTTP handler over the wired components
func (a *app) handler(cfg config.Config) http.Handler {
	deps := server.Deps{
		Converter: a.service,
		Resolver:  a.gateway,
		Playlists: a.playlists,
		Artifacts: a.store,
		Sweeper:   a.sweeper,
		Metrics:   a.recorder,
		Logger:    a.logger,
	}
	if a.prom != nil {
		deps.MetricsHandler = a.prom.Handler()
	}
	return server.New(server.Options{
		CORSOrigin:     cfg.Server.CORSOrigin,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		SweepOnRequest: cfg.Retention.SweepOnRequest,
		MetricsPath:    cfg.Metrics.Path,
	}, deps).Handler()
}

// close releases the store and flushes traces
func (a *app) close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}
