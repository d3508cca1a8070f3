// Package extractor turns a source URL into a single media file on disk.
//
// It drives yt-dlp through github.com/lrstanley/go-ytdlp and keeps all of
// the tool's quirks here: format selector priority, metadata probing with
// retries, stderr classification and container normalisation through the
// transcode package. Callers only see Fetch and the model error kinds.
package extractor
