// Package platform contains filesystem and external tooling glue: per-job
// working directories, locating the media file a downloader produced, and
// playlist listing via the ytdlp library.
package platform
