package model

// PlaylistEntry represents a single video listed in a playlist
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Playlist represents a YouTube playlist listing. Entries are converted
// individually through the regular conversion endpoint.
type Playlist struct {
	ID      string          `json:"playlist_id"`
	Title   string          `json:"title"`
	URL     string          `json:"url"`
	Entries []PlaylistEntry `json:"entries"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, url string) *Playlist {
	return &Playlist{
		ID:      id,
		URL:     url,
		Entries: make([]PlaylistEntry, 0),
	}
}

// AddEntry appends an entry, skipping ones without a video ID
func (p *Playlist) AddEntry(entry PlaylistEntry) {
	if entry.ID == "" {
		return
	}
	p.Entries = append(p.Entries, entry)
}

// Len returns the number of entries
func (p *Playlist) Len() int {
	return len(p.Entries)
}
