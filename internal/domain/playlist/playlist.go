// Package playlist provides the Playlist domain entity (albums and playlists from the catalog).
package playlist

import (
	"time"

	"github.com/samber/lo"

	"github.com/osa030/trakify/internal/domain/track"
)

// Playlist represents a catalog album or playlist.
type Playlist struct {
	ID         string        // Catalog ID
	Name       string        // Album or playlist name
	Artist     string        // Album artist (empty for playlists)
	ArtworkURL string        // Cover art URL
	Tracks     []track.Track // Tracks in order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return lo.Map(p.Tracks, func(t track.Track, _ int) string { return t.ID })
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	return lo.SumBy(p.Tracks, func(t track.Track) time.Duration { return t.Duration })
}

// QueueItems converts the tracks into unresolved queue items.
// Tracks without an artist fall back to the album artist.
func (p *Playlist) QueueItems() []track.QueueItem {
	return lo.Map(p.Tracks, func(t track.Track, _ int) track.QueueItem {
		item := t.ToQueueItem()
		if item.Artist == "" {
			item.Artist = p.Artist
		}
		return item
	})
}
