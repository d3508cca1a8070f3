package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/platform"
)

// FFmpeg constants for encoding settings
const (
	// Video codec settings
	VideoCodec  = "libx264"
	VideoPreset = "medium"
	VideoCRF    = "23"

	// Audio codec settings for the MP4 container
	AudioCodec   = "aac"
	AudioBitrate = "128k"

	// MP3 settings
	MP3Codec      = "libmp3lame"
	MP3Bitrate    = "192k"
	MP3SampleRate = "44100"

	// Container flags
	FastStartFlag = "+faststart"

	// Executable and I/O constants
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimePrefix  = "out_time_us="
)

// ErrSameFile is returned when the input already has the target extension.
var ErrSameFile = errors.New("input already has target extension")

// Service runs ffmpeg to convert downloaded media
type Service struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
	onProgress  func(path string, p Progress)
}

// Option configures a Service
type Option func(*Service)

// WithFFmpegPath overrides the ffmpeg executable. When the path points at a
// directory the binaries inside it are used; otherwise ffprobe is expected
// next to the given ffmpeg binary.
func WithFFmpegPath(path string) Option {
	return func(s *Service) {
		if path == "" {
			return
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			s.ffmpegPath = filepath.Join(path, FFmpegCommand)
			s.ffprobePath = filepath.Join(path, FFprobeCommand)
			return
		}
		s.ffmpegPath = path
		if dir := filepath.Dir(path); dir != "." {
			s.ffprobePath = filepath.Join(dir, FFprobeCommand+filepath.Ext(path))
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress registers a callback for progress samples
func WithProgress(fn func(path string, p Progress)) Option {
	return func(s *Service) { s.onProgress = fn }
}

// NewService creates a new ffmpeg backed converter
func NewService(opts ...Option) *Service {
	s := &Service{
		ffmpegPath:  FFmpegCommand,
		ffprobePath: FFprobeCommand,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Convert implements Converter
func (s *Service) Convert(ctx context.Context, inputPath string, format model.Format) (string, error) {
	if !format.IsValid() {
		return "", fmt.Errorf("unsupported format %q", format)
	}
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input file does not exist: %s", inputPath)
	}

	outputPath := platform.ReplaceExtension(inputPath, format.Extension())
	if outputPath == inputPath {
		return "", ErrSameFile
	}

	args := BuildArgs(format, inputPath, outputPath)
	s.logger.Info("transcoding", "input", inputPath, "output", outputPath, "format", format.String())

	// Duration only drives the percentage; a failed probe is not fatal
	duration, err := s.probeDuration(ctx, inputPath)
	if err != nil {
		s.logger.Debug("ffprobe failed", "input", inputPath, "error", err)
		duration = 0
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := s.monitorProgress(stderr, outputPath, duration)

	if err := cmd.Wait(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if tail != "" {
			return "", fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
		}
		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	if ok, _ := platform.FileExists(outputPath); !ok {
		return "", fmt.Errorf("ffmpeg produced no output at %s", outputPath)
	}
	return outputPath, nil
}

// BuildArgs builds the ffmpeg command arguments for the target format
func BuildArgs(format model.Format, inputPath, outputPath string) []string {
	args := []string{
		"-y",            // Overwrite output file
		"-i", inputPath, // Input file
	}
	switch format {
	case model.FormatAudio:
		args = append(args,
			"-vn",
			"-c:a", MP3Codec,
			"-b:a", MP3Bitrate,
			"-ar", MP3SampleRate,
		)
	default:
		args = append(args,
			"-c:v", VideoCodec,
			"-preset", VideoPreset,
			"-crf", VideoCRF,
			"-c:a", AudioCodec,
			"-b:a", AudioBitrate,
			"-movflags", FastStartFlag, // MP4 optimization
		)
	}
	return append(args,
		"-progress", ProgressPipeTarget, // Progress to stderr
		"-nostats",
		outputPath,
	)
}

// probeDuration gets the duration of a media file in seconds using ffprobe
func (s *Service) probeDuration(ctx context.Context, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath, "-v", FFprobeLogLevel, "-show_entries", FFprobeShowEntries, "-of", FFprobeOutputFormat, filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}
	return strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
}

// monitorProgress consumes ffmpeg stderr until EOF. It returns the last
// non-progress line, which usually carries the failure reason.
func (s *Service) monitorProgress(stderr io.Reader, outputPath string, totalDuration float64) string {
	scanner := bufio.NewScanner(stderr)
	var last string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		p, ok := ParseProgressLine(line, totalDuration)
		if !ok {
			if line != "" && !strings.Contains(line, "=") {
				last = line
			}
			continue
		}
		if s.onProgress != nil {
			s.onProgress(outputPath, p)
		}
	}
	return last
}

// ParseProgressLine parses an "out_time_us=" line from ffmpeg -progress output.
func ParseProgressLine(line string, totalDuration float64) (Progress, bool) {
	if !strings.HasPrefix(line, ProgressTimePrefix) {
		return Progress{}, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
	if err != nil || us < 0 {
		return Progress{}, false
	}
	seconds := float64(us) / 1000000.0
	p := Progress{Seconds: seconds, Percent: -1}
	if totalDuration > 0 {
		progress := min(seconds/totalDuration, 1.0)
		p.Percent = int(progress * 100)
	}
	return p, true
}
