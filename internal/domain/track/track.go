// Package track provides the Track and QueueItem domain entities.
package track

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track represents a catalog track.
// Contains only information retrieved from the catalog API.
type Track struct {
	ID          string        // Catalog track ID
	Name        string        // Track name
	Artists     []string      // Artist names
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	URL         string        // Catalog URL
}

// PrimaryArtist returns the first artist name, or "" when unknown.
func (t *Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ToQueueItem converts a catalog track into an unresolved queue item.
func (t *Track) ToQueueItem() QueueItem {
	return QueueItem{
		Title:      t.Name,
		Artist:     t.PrimaryArtist(),
		ArtworkRef: t.AlbumArtURL,
	}
}

// QueueItem represents one entry in the play queue.
type QueueItem struct {
	ID         string    // Stable per-enqueue identifier
	Title      string    // Display title, also used to query the resolver
	Artist     string    // Artist hint (optional)
	ContentRef string    // Local playable content path, empty until resolved
	ArtworkRef string    // Artwork URL (optional)
	Resolving  bool      // True while a resolution worker owns this item
	AddedAt    time.Time // Time when added to queue
}

// NewQueueItem creates a queue item with a fresh ID.
func NewQueueItem(contentRef, title, artist, artworkRef string) QueueItem {
	return QueueItem{
		ID:         uuid.New().String(),
		Title:      title,
		Artist:     artist,
		ContentRef: contentRef,
		ArtworkRef: artworkRef,
		AddedAt:    time.Now(),
	}
}

// EnsureID assigns an ID and insertion time if the item has none.
func (q *QueueItem) EnsureID() {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.AddedAt.IsZero() {
		q.AddedAt = time.Now()
	}
}

// HasContent reports whether the item carries a content reference.
func (q *QueueItem) HasContent() bool {
	return q.ContentRef != ""
}

// Query returns the search query sent to the content resolver.
func (q *QueueItem) Query() string {
	if q.Artist == "" {
		return strings.TrimSpace(q.Title)
	}
	return strings.TrimSpace(q.Artist + " " + q.Title)
}
