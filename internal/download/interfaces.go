package download

import (
	"context"
	"io"
	"time"

	"github.com/ytget/yt-converter/internal/model"
)

// Converter accepts conversion requests.
type Converter interface {
	Submit(ctx context.Context, rawURL, rawFormat string) (Conversion, error)
	ActiveJobs() int
}

// Resolver maps tokens to stored artifacts.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Artifact, error)
	Open(ctx context.Context, token string) (*OpenArtifact, error)
}

// Conversion is returned to the client after a successful Submit.
type Conversion struct {
	Token  string
	Title  string
	Format string
}

// Artifact is the resolved location of a token.
type Artifact struct {
	FilePath    string
	DisplayName string
	Format      model.Format
}

// OpenArtifact is an artifact opened for streaming. The caller closes it.
type OpenArtifact struct {
	Artifact
	File    io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// Close closes the underlying file
func (a *OpenArtifact) Close() error {
	return a.File.Close()
}
