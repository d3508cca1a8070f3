package transcode

import (
	"context"

	"github.com/ytget/yt-converter/internal/model"
)

// Converter re-encodes a media file into the container of a target format.
type Converter interface {
	// Convert writes a sibling of inputPath with the target extension and
	// returns its path. The input file is left in place.
	Convert(ctx context.Context, inputPath string, format model.Format) (string, error)
}

// Progress is a single progress sample emitted while ffmpeg runs.
type Progress struct {
	// Seconds of output written so far
	Seconds float64
	// Percent is 0..100, or -1 when the input duration is unknown
	Percent int
}
