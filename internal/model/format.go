package model

import (
	"fmt"
	"strings"
)

// Format is the requested output kind of a conversion.
type Format string

const (
	// FormatAudio produces an audio-only file in the mp3 container.
	FormatAudio Format = "audio"

	// FormatVideo produces a combined audio+video file in the mp4 container.
	FormatVideo Format = "video"
)

// Wire names accepted by the HTTP API.
const (
	WireMP3 = "mp3"
	WireMP4 = "mp4"
)

// ParseFormat maps a client-supplied format string to a Format.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case WireMP3:
		return FormatAudio, nil
	case WireMP4:
		return FormatVideo, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Extension returns the file extension (without dot) of the target container.
func (f Format) Extension() string {
	switch f {
	case FormatAudio:
		return WireMP3
	case FormatVideo:
		return WireMP4
	default:
		return ""
	}
}

// Wire returns the normalized client-facing name of the format.
func (f Format) Wire() string {
	return f.Extension()
}

// ContentType returns the MIME type served on download.
func (f Format) ContentType() string {
	switch f {
	case FormatAudio:
		return "audio/mpeg"
	case FormatVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// IsValid reports whether f is one of the known formats.
func (f Format) IsValid() bool {
	return f == FormatAudio || f == FormatVideo
}

// String returns the string representation of Format
func (f Format) String() string {
	return string(f)
}
