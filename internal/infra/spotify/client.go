// Package spotify provides a catalog client for the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/trakify/internal/domain/playlist"
	"github.com/osa030/trakify/internal/domain/track"
)

// ErrNotConfigured is returned when no catalog credentials are configured.
var ErrNotConfigured = errors.New("spotify credentials are not configured")

// Client is a Spotify catalog client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string

	// Endpoint overrides, empty for the public API.
	TokenURL string
	APIURL   string
}

// New creates a new Spotify client authenticated with client credentials.
// Only public catalog data is reachable; no user scopes are requested.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	// The HTTP client fetches and refreshes the app token on demand.
	var opts []spotify.ClientOption
	if cfg.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.APIURL))
	}
	client := spotify.New(creds.Client(ctx), opts...)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractID(trackID, "track")

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t := c.convertTrack(&result.SimpleTrack, result.Album)
	return &t, nil
}

// SearchTracks searches the catalog for tracks.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	return lo.Map(result.Tracks.Tracks, func(t spotify.FullTrack, _ int) track.Track {
		return c.convertTrack(&t.SimpleTrack, t.Album)
	}), nil
}

// GetAlbum retrieves an album with all of its tracks, following pagination.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (*playlist.Playlist, error) {
	id := extractID(albumID, "album")
	if id == "" {
		return nil, errors.New("album ID is required")
	}

	var album *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	result := &playlist.Playlist{
		ID:         string(album.ID),
		Name:       album.Name,
		Artist:     firstArtist(album.Artists),
		ArtworkURL: firstImage(album.Images),
	}

	page := &album.Tracks
	for {
		for _, t := range page.Tracks {
			result.Tracks = append(result.Tracks, c.convertTrack(&t, album.SimpleAlbum))
		}
		err := c.retry(func() error {
			return c.client.NextPage(ctx, page)
		})
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}
	}

	zlog.Debug().Msgf("spotify: album loaded: id=%s name=%s tracks=%d", result.ID, result.Name, len(result.Tracks))
	return result, nil
}

// GetPlaylist retrieves a public playlist with all of its tracks.
func (c *Client) GetPlaylist(ctx context.Context, playlistURL string) (*playlist.Playlist, error) {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var info *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("id,name,images"))
		if err != nil {
			return err
		}
		info = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist")
	}

	result := &playlist.Playlist{
		ID:         playlistID,
		Name:       info.Name,
		ArtworkURL: firstImage(info.Images),
	}

	offset := 0
	limit := 100
	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes carry no track.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				t := item.Track.Track
				result.Tracks = append(result.Tracks, c.convertTrack(&t.SimpleTrack, t.Album))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return result, nil
}

// convertTrack converts a Spotify track to a domain Track.
func (c *Client) convertTrack(t *spotify.SimpleTrack, album spotify.SimpleAlbum) track.Track {
	return track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     lo.Map(t.Artists, func(a spotify.SimpleArtist, _ int) string { return a.Name }),
		Album:       album.Name,
		AlbumArtURL: firstImage(album.Images),
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         c.GetTrackURL(string(t.ID)),
	}
}

// GetTrackURL returns the Spotify URL for a track.
func (c *Client) GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts the ID of the given kind ("track", "album", "playlist")
// from a Spotify URL or URI.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Spotify URI format: spotify:<kind>:ID
	if id, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return id
	}

	// URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	marker := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, marker) {
		parts := strings.Split(input, marker)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
