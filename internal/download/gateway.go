package download

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ytget/yt-converter/internal/metrics"
	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/store"
)

// Client-facing gateway messages
const (
	MsgUnknownToken    = "Invalid or expired download token"
	MsgArtifactMissing = "File not found"
)

// Download outcomes for metrics
const (
	DownloadOK      = "ok"
	DownloadUnknown = "unknown_token"
	DownloadMissing = "missing"
	DownloadError   = "error"
)

// Gateway resolves download tokens. It never modifies the store.
type Gateway struct {
	store   store.Store
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewGateway creates a gateway over st
func NewGateway(st store.Store, rec metrics.Recorder, logger *slog.Logger) *Gateway {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: st, metrics: rec, logger: logger.With("component", "gateway")}
}

// Resolve returns the artifact registered under token after checking that
// its file still exists.
func (g *Gateway) Resolve(ctx context.Context, token string) (Artifact, error) {
	rec, err := g.lookup(ctx, token)
	if err != nil {
		return Artifact{}, err
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		return Artifact{}, g.fileError(token, err)
	}
	return artifactOf(rec), nil
}

// Open resolves token and opens its file for streaming. A file removed
// between lookup and open is reported as missing.
func (g *Gateway) Open(ctx context.Context, token string) (*OpenArtifact, error) {
	rec, err := g.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(rec.FilePath)
	if err != nil {
		return nil, g.fileError(token, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, g.fileError(token, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, g.fileError(token, fs.ErrNotExist)
	}
	g.metrics.IncDownload(DownloadOK)
	return &OpenArtifact{
		Artifact: artifactOf(rec),
		File:     f,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

func (g *Gateway) lookup(ctx context.Context, token string) (model.ArtifactRecord, error) {
	const op = "gateway.lookup"
	if token == "" {
		g.metrics.IncDownload(DownloadUnknown)
		return model.ArtifactRecord{}, model.NewError(model.KindUnknownToken, op, MsgUnknownToken, nil)
	}
	rec, ok, err := g.store.Lookup(ctx, token)
	if err != nil {
		g.metrics.IncDownload(DownloadError)
		return model.ArtifactRecord{}, model.NewError(model.KindStorageIO, op, "Failed to look up token", err)
	}
	if !ok {
		g.metrics.IncDownload(DownloadUnknown)
		return model.ArtifactRecord{}, model.NewError(model.KindUnknownToken, op, MsgUnknownToken, nil)
	}
	return rec, nil
}

// fileError classifies a failure to reach the artifact file
func (g *Gateway) fileError(token string, err error) error {
	const op = "gateway.open"
	if errors.Is(err, fs.ErrNotExist) {
		g.metrics.IncDownload(DownloadMissing)
		g.logger.Warn("artifact file missing", "token", token)
		return model.NewError(model.KindArtifactMissing, op, MsgArtifactMissing, err)
	}
	g.metrics.IncDownload(DownloadError)
	return model.NewError(model.KindStorageIO, op, "Failed to open file", err)
}

func artifactOf(rec model.ArtifactRecord) Artifact {
	return Artifact{FilePath: rec.FilePath, DisplayName: rec.DisplayName, Format: rec.Format}
}
