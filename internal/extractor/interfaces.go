package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ytget/yt-converter/internal/model"
)

// Fetcher acquires media for a single conversion job.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Request describes one acquisition. WorkDir must already exist.
type Request struct {
	URL     string
	Format  model.Format
	WorkDir string
	JobID   string
}

// Result is the outcome of a successful Fetch.
type Result struct {
	FilePath string
	Title    string
}

// ErrFormatUnavailable is returned by a runner when the requested format
// selector matches no stream of the source.
var ErrFormatUnavailable = errors.New("requested format is not available")

// RunError is a failed yt-dlp invocation. Detail is the last line yt-dlp
// wrote to stderr, usually its "ERROR: ..." summary.
type RunError struct {
	Op     string
	Err    error
	Detail string
}

func (e *RunError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// runner is the narrow surface of yt-dlp the service depends on.
type runner interface {
	// Probe resolves the source metadata and returns its title.
	Probe(ctx context.Context, url string) (string, error)
	// Download fetches url with the given format selector into outputTemplate.
	Download(ctx context.Context, url string, sel Selector, outputTemplate string) error
}
