package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// File extensions left behind by interrupted or in-progress downloads
var (
	SkippedExtensions = []string{".part", ".ytdl", ".temp", ".tmp"}
)

// ErrNoMediaFile is returned when a working directory holds no finished media file.
var ErrNoMediaFile = errors.New("no media file found")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// CreateJobDirectory creates a fresh working directory for jobID under root.
// It fails if the directory already exists so two jobs never share one.
func CreateJobDirectory(root, jobID string) (string, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(root, jobID)
	if err := os.Mkdir(dir, DefaultDirPermissions); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	return dir, nil
}

// FindMediaFiles lists finished files in dir, newest first. Temporary
// downloader files and subdirectories are ignored.
func FindMediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isSkippedFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:  filepath.Join(dir, entry.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return nil, ErrNoMediaFile
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].mtime != candidates[j].mtime {
			return candidates[i].mtime > candidates[j].mtime
		}
		return candidates[i].path < candidates[j].path
	})

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

// RemoveDirIfEmpty removes dir only when it has no entries. It reports
// whether the directory was removed. A missing directory is not an error.
func RemoveDirIfEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// ReplaceExtension swaps the extension of path for ext (without dot).
func ReplaceExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

// isSkippedFile checks if a filename belongs to an unfinished download
func isSkippedFile(filename string) bool {
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return strings.HasPrefix(filename, ".")
}
