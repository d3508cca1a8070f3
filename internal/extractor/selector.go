package extractor

import "github.com/ytget/yt-converter/internal/model"

// Selector is one stream selection alternative.
type Selector struct {
	// Format is the yt-dlp format expression
	Format string
	// ExtractAudio asks yt-dlp to strip video and re-encode to mp3
	ExtractAudio bool
}

// Format selectors in priority order
var (
	videoSelectors = []Selector{
		{Format: "bestvideo[ext=mp4]+bestaudio[ext=m4a]"},
		{Format: "best[ext=mp4]"},
		{Format: "best"},
	}
	audioSelectors = []Selector{
		{Format: "bestaudio", ExtractAudio: true},
		{Format: "best", ExtractAudio: true},
	}
)

// Selectors returns the alternatives tried for format, highest priority first.
func Selectors(format model.Format) []Selector {
	var src []Selector
	switch format {
	case model.FormatAudio:
		src = audioSelectors
	case model.FormatVideo:
		src = videoSelectors
	default:
		return nil
	}
	out := make([]Selector, len(src))
	copy(out, src)
	return out
}
