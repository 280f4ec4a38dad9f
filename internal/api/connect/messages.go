package connect

import (
	"time"

	"github.com/samber/lo"

	"github.com/osa030/trakify/internal/app/playback"
	"github.com/osa030/trakify/internal/domain/track"
	"github.com/osa030/trakify/internal/infra/playlog"
)

// Item is a queue entry on the wire.
type Item struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	ContentRef string `json:"content_ref,omitempty"`
	ArtworkRef string `json:"artwork_ref,omitempty"`
	Resolving  bool   `json:"resolving,omitempty"`
}

// Status is a snapshot of the player.
type Status struct {
	SequenceNo   uint64 `json:"sequence_no"`
	Phase        string `json:"phase"`
	Title        string `json:"title,omitempty"`
	ContentRef   string `json:"content_ref,omitempty"`
	ArtworkRef   string `json:"artwork_ref,omitempty"`
	PositionMs   int    `json:"position_ms"`
	DurationMs   int    `json:"duration_ms"`
	CurrentIndex int    `json:"current_index"`
	Queue        []Item `json:"queue"`
	HistoryLen   int    `json:"history_len"`
	Repeat       string `json:"repeat"`
	HasNext      bool   `json:"has_next"`
	HasPrevious  bool   `json:"has_previous"`
	LastError    string `json:"last_error,omitempty"`
}

// CatalogTrack is a catalog search hit.
type CatalogTrack struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	ArtworkURL string   `json:"artwork_url,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Play is a play log row.
type Play struct {
	ItemID     string    `json:"item_id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	ContentRef string    `json:"content_ref"`
	PlayedAt   time.Time `json:"played_at"`
}

// Empty is used by procedures without parameters or results.
type Empty struct{}

// Applied reports whether a navigation or transport call had an effect.
// No-effect calls are not errors.
type Applied struct {
	Applied bool `json:"applied"`
}

type SetQueueRequest struct {
	Items        []Item `json:"items"`
	AlbumArtwork string `json:"album_artwork,omitempty"`
}

type EnqueueRequest struct {
	Item    Item   `json:"item"`
	TrackID string `json:"track_id,omitempty"` // Catalog track; overrides Item
}

type EnqueueResponse struct {
	Item Item `json:"item"`
}

type EnqueueAlbumRequest struct {
	AlbumID     string `json:"album_id,omitempty"`
	PlaylistURL string `json:"playlist_url,omitempty"`
	Play        bool   `json:"play,omitempty"`
	Prefetch    bool   `json:"prefetch,omitempty"`
}

type EnqueueAlbumResponse struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Tracks []CatalogTrack `json:"tracks"`
}

type PlayAtRequest struct {
	Index int `json:"index"`
}

type SeekRequest struct {
	PositionMs int `json:"position_ms"`
}

type UpdateContentRequest struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	ContentRef string `json:"content_ref"`
	ArtworkRef string `json:"artwork_ref,omitempty"`
}

type PrefetchResponse struct {
	Submitted int `json:"submitted"`
}

type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Session []Item `json:"session"`
	Plays   []Play `json:"plays,omitempty"`
}

func toItem(q track.QueueItem) Item {
	return Item{
		ID:         q.ID,
		Title:      q.Title,
		Artist:     q.Artist,
		ContentRef: q.ContentRef,
		ArtworkRef: q.ArtworkRef,
		Resolving:  q.Resolving,
	}
}

// fromItem drops Resolving; only the resolution pool may set it.
func fromItem(i Item) track.QueueItem {
	return track.QueueItem{
		ID:         i.ID,
		Title:      i.Title,
		Artist:     i.Artist,
		ContentRef: i.ContentRef,
		ArtworkRef: i.ArtworkRef,
	}
}

func toStatus(s playback.Status, seq uint64) *Status {
	return &Status{
		SequenceNo:   seq,
		Phase:        s.Phase.String(),
		Title:        s.Title,
		ContentRef:   s.ContentRef,
		ArtworkRef:   s.ArtworkRef,
		PositionMs:   s.PositionMs,
		DurationMs:   s.DurationMs,
		CurrentIndex: s.CurrentIndex,
		Queue:        lo.Map(s.Queue, func(q track.QueueItem, _ int) Item { return toItem(q) }),
		HistoryLen:   s.HistoryLen,
		Repeat:       string(s.Repeat),
		HasNext:      s.HasNext,
		HasPrevious:  s.HasPrevious,
		LastError:    s.LastError,
	}
}

func toCatalogTrack(t track.Track) CatalogTrack {
	return CatalogTrack{
		ID:         t.ID,
		Name:       t.Name,
		Artists:    t.Artists,
		Album:      t.Album,
		ArtworkURL: t.AlbumArtURL,
		DurationMs: t.Duration.Milliseconds(),
	}
}

func toPlay(e playlog.Entry) Play {
	return Play{
		ItemID:     e.ItemID,
		Title:      e.Title,
		Artist:     e.Artist,
		ContentRef: e.ContentRef,
		PlayedAt:   e.PlayedAt,
	}
}
