package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// yt-dlp output markers
const (
	TitleTemplate         = "%(title)s"
	FormatUnavailableText = "requested format is not available"
	AudioCodecMP3         = "mp3"
)

// ytdlpRunner executes yt-dlp through go-ytdlp
type ytdlpRunner struct {
	executable string
	ffmpegPath string
}

// command creates a configured yt-dlp command
func (r ytdlpRunner) command() *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		ForceOverwrites()
	if r.executable != "" {
		dl.SetExecutable(r.executable)
	}
	if r.ffmpegPath != "" {
		dl.FFmpegLocation(r.ffmpegPath)
	}
	return dl
}

// Probe implements runner
func (r ytdlpRunner) Probe(ctx context.Context, url string) (string, error) {
	dl := r.command().
		SkipDownload().
		Print(TitleTemplate)

	res, err := dl.Run(ctx, url)
	if err != nil {
		return "", &RunError{Op: "yt-dlp probe", Err: err, Detail: lastStderrLine(res)}
	}
	if res == nil {
		return "", nil
	}
	title, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(title), nil
}

// Download implements runner
func (r ytdlpRunner) Download(ctx context.Context, url string, sel Selector, outputTemplate string) error {
	dl := r.command().
		Format(sel.Format).
		Output(outputTemplate)
	if sel.ExtractAudio {
		dl.ExtractAudio().AudioFormat(AudioCodecMP3)
	}

	res, err := dl.Run(ctx, url)
	if err == nil {
		return nil
	}
	if isFormatUnavailable(err, res) {
		return fmt.Errorf("%w: %s", ErrFormatUnavailable, sel.Format)
	}
	return &RunError{Op: "yt-dlp download " + sel.Format, Err: err, Detail: lastStderrLine(res)}
}

// isFormatUnavailable classifies a failed run by its stderr
func isFormatUnavailable(err error, res *ytdlp.Result) bool {
	text := strings.ToLower(err.Error())
	if res != nil {
		text += " " + strings.ToLower(res.Stderr)
	}
	return strings.Contains(text, FormatUnavailableText)
}

// lastStderrLine returns the last stderr line of a run, if any
func lastStderrLine(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// outputTemplate builds the yt-dlp output template for a job
func outputTemplate(workDir, jobID string) string {
	return filepath.Join(workDir, jobID+".%(ext)s")
}
