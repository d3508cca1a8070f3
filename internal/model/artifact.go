package model

import (
	"strings"
	"time"
)

// DefaultTTL is the lifetime of an artifact before it becomes eligible for eviction.
const DefaultTTL = time.Hour

// FallbackTitlePrefix is used when no human-readable title could be resolved.
const FallbackTitlePrefix = "youtube-video-"

// ArtifactRecord describes a produced media file registered under a token.
// Records are immutable once inserted into a store.
type ArtifactRecord struct {
	Token       string    `json:"token"`
	FilePath    string    `json:"file_path"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	Format      Format    `json:"format"`
	JobID       string    `json:"job_id"`
	SourceURL   string    `json:"source_url,omitempty"`
}

// Expired reports whether the record is older than ttl at now.
// A record exactly ttl old is not expired.
func (r ArtifactRecord) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// DisplayName builds the file name presented on download: "{title}.{ext}".
// Path separators are replaced so the name can never address a directory.
func DisplayName(title string, format Format) string {
	title = strings.TrimSpace(title)
	title = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		case '\r', '\n', 0:
			return -1
		}
		return r
	}, title)
	return title + "." + format.Extension()
}

// FallbackTitle synthesizes a unique, non-empty title for a job.
func FallbackTitle(jobID string) string {
	return FallbackTitlePrefix + jobID
}
