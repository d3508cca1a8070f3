package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/ytdlp/types"
	"github.com/ytget/ytdlp/v2"
)

// Timeout constants
const (
	DefaultParseTimeout = 60 * time.Second
)

// URL parameters
const (
	PlaylistParam = "list"
)

// Default values
const (
	DefaultPlaylistName = "Unknown Playlist"
	PlaylistSuffix      = " Playlist"
	MinPrefixLength     = 10
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// playlistSource fetches all items of a playlist by ID
type playlistSource interface {
	Items(ctx context.Context, playlistID string) ([]types.PlaylistItem, error)
}

// ytdlpSource lists playlist items through the ytdlp library
type ytdlpSource struct{}

func (ytdlpSource) Items(ctx context.Context, playlistID string) ([]types.PlaylistItem, error) {
	return ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
}

// PlaylistService lists the videos of a YouTube playlist
type PlaylistService struct {
	timeout time.Duration
	source  playlistSource
}

// NewPlaylistService creates a new playlist service backed by the ytdlp library
func NewPlaylistService() *PlaylistService {
	return &PlaylistService{
		timeout: DefaultParseTimeout,
		source:  ytdlpSource{},
	}
}

// SetTimeout sets the timeout for listing operations
func (p *PlaylistService) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// List fetches the playlist referenced by rawURL.
func (p *PlaylistService) List(ctx context.Context, rawURL string) (*model.Playlist, error) {
	playlistID, err := ExtractPlaylistID(rawURL)
	if err != nil {
		return nil, model.NewError(model.KindInvalidRequest, "playlist", "URL does not reference a playlist", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	items, err := p.source.Items(ctx, playlistID)
	if err != nil {
		return nil, model.NewError(model.KindSourceUnresolvable, "playlist",
			fmt.Sprintf("Failed to list playlist: %v", err), err)
	}

	playlist := model.NewPlaylist(playlistID, rawURL)
	for _, it := range items {
		playlist.AddEntry(model.PlaylistEntry{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	playlist.Title = extractPlaylistTitle(playlist.Entries)
	return playlist, nil
}

// ExtractPlaylistID extracts the playlist ID from the list query parameter.
// Supported forms:
//   - https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&start_radio=1
//   - https://www.youtube.com/playlist?list=PLAYLIST_ID
func ExtractPlaylistID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	id := strings.TrimSpace(u.Query().Get(PlaylistParam))
	if id == "" {
		return "", fmt.Errorf("URL does not contain playlist parameter")
	}
	return id, nil
}

// extractPlaylistTitle generates a title for the playlist based on its entries
func extractPlaylistTitle(entries []model.PlaylistEntry) string {
	if len(entries) == 0 {
		return DefaultPlaylistName
	}
	if len(entries) > 1 {
		commonPrefix := findCommonPrefix(entries[0].Title, entries[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return entries[0].Title + PlaylistSuffix
}

// findCommonPrefix finds the common prefix between two strings
func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
