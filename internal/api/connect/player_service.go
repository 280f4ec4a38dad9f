package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/trakify/internal/app/notification"
	"github.com/osa030/trakify/internal/app/playback"
	"github.com/osa030/trakify/internal/domain/playlist"
	"github.com/osa030/trakify/internal/domain/track"
	"github.com/osa030/trakify/internal/infra/playlog"
	"github.com/osa030/trakify/internal/infra/storage"
)

// DefaultPositionThrottle is the minimum interval between position-only
// updates sent to one subscriber.
const DefaultPositionThrottle = 500 * time.Millisecond

// Player is the queue coordinator as seen by the API.
type Player interface {
	SetQueue(items []track.QueueItem, albumArtwork string)
	Enqueue(item track.QueueItem) track.QueueItem
	Clear()
	PlayAt(index int) bool
	PlayNext() bool
	PlayPrevious() bool
	SkipBack() bool
	Pause() bool
	Resume() bool
	Stop() bool
	SeekTo(positionMs int) bool
	UpdateContentRef(title, contentRef, artworkRef string) bool
	UpdateContentRefByID(id, contentRef, artworkRef string) bool
	Prefetch(ctx context.Context) int
	Snapshot() playback.Status
	History() []track.QueueItem
	RegisterSubscriber(sub notification.Subscriber) string
	UnregisterSubscriber(id string)
	SequenceNo() uint64
}

// Catalog looks up tracks and albums.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetAlbum(ctx context.Context, albumID string) (*playlist.Playlist, error)
	GetPlaylist(ctx context.Context, playlistURL string) (*playlist.Playlist, error)
}

// PlayHistory reads the persistent play log.
type PlayHistory interface {
	Recent(limit int) ([]playlog.Entry, error)
}

// Storage is the content directory.
type Storage interface {
	Ensure() error
}

// ServiceOption configures a PlayerService.
type ServiceOption func(*PlayerService)

// WithCatalog enables the catalog procedures.
func WithCatalog(c Catalog) ServiceOption {
	return func(s *PlayerService) { s.catalog = c }
}

// WithPlayHistory enables the persistent part of History.
func WithPlayHistory(h PlayHistory) ServiceOption {
	return func(s *PlayerService) { s.plays = h }
}

// WithStorage checks the content directory before starting playback.
func WithStorage(st Storage) ServiceOption {
	return func(s *PlayerService) { s.storage = st }
}

// WithPositionThrottle overrides DefaultPositionThrottle.
func WithPositionThrottle(d time.Duration) ServiceOption {
	return func(s *PlayerService) { s.throttle = d }
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player   Player
	catalog  Catalog
	plays    PlayHistory
	storage  Storage
	throttle time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player, opts ...ServiceOption) *PlayerService {
	s := &PlayerService{
		player:   player,
		throttle: DefaultPositionThrottle,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close ends every open Subscribe stream.
func (s *PlayerService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SetQueue replaces the queue.
func (s *PlayerService) SetQueue(
	ctx context.Context,
	req *connect.Request[SetQueueRequest],
) (*connect.Response[Status], error) {
	items := lo.Map(req.Msg.Items, func(i Item, _ int) track.QueueItem { return fromItem(i) })
	s.player.SetQueue(items, req.Msg.AlbumArtwork)
	return s.status(), nil
}

// Enqueue appends one item, either given directly or looked up by catalog track ID.
func (s *PlayerService) Enqueue(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	queued := fromItem(req.Msg.Item)
	if req.Msg.TrackID != "" {
		if s.catalog == nil {
			return nil, connect.NewError(connect.CodeUnimplemented, errors.New("catalog is not configured"))
		}
		t, err := s.catalog.GetTrack(ctx, req.Msg.TrackID)
		if err != nil {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		queued = t.ToQueueItem()
	}
	if queued.Title == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("title is required"))
	}
	item := s.player.Enqueue(queued)
	return connect.NewResponse(&EnqueueResponse{Item: toItem(item)}), nil
}

// EnqueueAlbum replaces the queue with the tracks of a catalog album or playlist.
func (s *PlayerService) EnqueueAlbum(
	ctx context.Context,
	req *connect.Request[EnqueueAlbumRequest],
) (*connect.Response[EnqueueAlbumResponse], error) {
	if s.catalog == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("catalog is not configured"))
	}
	var (
		album *playlist.Playlist
		err   error
	)
	switch {
	case req.Msg.AlbumID != "":
		album, err = s.catalog.GetAlbum(ctx, req.Msg.AlbumID)
	case req.Msg.PlaylistURL != "":
		album, err = s.catalog.GetPlaylist(ctx, req.Msg.PlaylistURL)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("album_id or playlist_url is required"))
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	s.player.SetQueue(album.QueueItems(), album.ArtworkURL)
	zlog.Info().Msgf("api: album queued: name=%s tracks=%d", album.Name, len(album.Tracks))

	if req.Msg.Play || req.Msg.Prefetch {
		if err := s.ensureStorage(); err != nil {
			return nil, err
		}
	}
	if req.Msg.Play {
		s.player.PlayAt(0)
	}
	if req.Msg.Prefetch {
		// Pacing outlives the request.
		go s.player.Prefetch(context.WithoutCancel(ctx))
	}

	return connect.NewResponse(&EnqueueAlbumResponse{Name: album.Name, Count: len(album.Tracks)}), nil
}

// Search searches the catalog for tracks.
func (s *PlayerService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	if s.catalog == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("catalog is not configured"))
	}
	if req.Msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	tracks, err := s.catalog.SearchTracks(ctx, req.Msg.Query, req.Msg.Limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&SearchResponse{
		Tracks: lo.Map(tracks, func(t track.Track, _ int) CatalogTrack { return toCatalogTrack(t) }),
	}), nil
}

// PlayAt plays the item at an index.
func (s *PlayerService) PlayAt(
	ctx context.Context,
	req *connect.Request[PlayAtRequest],
) (*connect.Response[Applied], error) {
	if err := s.ensureStorage(); err != nil {
		return nil, err
	}
	return applied(s.player.PlayAt(req.Msg.Index)), nil
}

// Next advances to the next item.
func (s *PlayerService) Next(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Applied], error) {
	if err := s.ensureStorage(); err != nil {
		return nil, err
	}
	return applied(s.player.PlayNext()), nil
}

// Previous restarts the current item or moves to the previous one.
func (s *PlayerService) Previous(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Applied], error) {
	if err := s.ensureStorage(); err != nil {
		return nil, err
	}
	return applied(s.player.SkipBack()), nil
}

func (s *PlayerService) Pause(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Applied], error) {
	return applied(s.player.Pause()), nil
}

func (s *PlayerService) Resume(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Applied], error) {
	return applied(s.player.Resume()), nil
}

func (s *PlayerService) Stop(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Applied], error) {
	return applied(s.player.Stop()), nil
}

func (s *PlayerService) Seek(ctx context.Context, req *connect.Request[SeekRequest]) (*connect.Response[Applied], error) {
	return applied(s.player.SeekTo(req.Msg.PositionMs)), nil
}

func (s *PlayerService) Clear(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Status], error) {
	s.player.Clear()
	return s.status(), nil
}

// UpdateContent sets the content of an item, by ID when given, by title otherwise.
func (s *PlayerService) UpdateContent(
	ctx context.Context,
	req *connect.Request[UpdateContentRequest],
) (*connect.Response[Applied], error) {
	m := req.Msg
	switch {
	case m.ID != "":
		return applied(s.player.UpdateContentRefByID(m.ID, m.ContentRef, m.ArtworkRef)), nil
	case m.Title != "":
		return applied(s.player.UpdateContentRef(m.Title, m.ContentRef, m.ArtworkRef)), nil
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id or title is required"))
	}
}

// Prefetch resolves every unresolved item in the background.
func (s *PlayerService) Prefetch(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[PrefetchResponse], error) {
	if err := s.ensureStorage(); err != nil {
		return nil, err
	}
	n := s.player.Prefetch(context.WithoutCancel(ctx))
	return connect.NewResponse(&PrefetchResponse{Submitted: n}), nil
}

func (s *PlayerService) GetStatus(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Status], error) {
	return s.status(), nil
}

// History returns the session history and, when configured, the play log.
func (s *PlayerService) History(
	ctx context.Context,
	req *connect.Request[HistoryRequest],
) (*connect.Response[HistoryResponse], error) {
	resp := &HistoryResponse{
		Session: lo.Map(s.player.History(), func(q track.QueueItem, _ int) Item { return toItem(q) }),
	}
	if s.plays != nil {
		entries, err := s.plays.Recent(req.Msg.Limit)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		resp.Plays = lo.Map(entries, func(e playlog.Entry, _ int) Play { return toPlay(e) })
	}
	return connect.NewResponse(resp), nil
}

// Subscribe streams a status snapshot on every state change.
// Position-only changes are throttled per subscriber.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[Status],
) error {
	stateCh := make(chan struct{}, 1)
	posCh := make(chan struct{}, 1)
	id := s.player.RegisterSubscriber(notification.SubscriberFuncs{
		StateChanged:    func() { signal(stateCh) },
		PositionUpdated: func() { signal(posCh) },
	})
	defer s.player.UnregisterSubscriber(id)

	send := func() error {
		return stream.Send(toStatus(s.player.Snapshot(), s.player.SequenceNo()))
	}
	if err := send(); err != nil {
		return err
	}

	var lastSent time.Time
	var pending bool
	ticker := time.NewTicker(s.throttle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-stateCh:
			pending = false
		case <-posCh:
			if time.Since(lastSent) < s.throttle {
				pending = true
				continue
			}
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
		}
		if err := send(); err != nil {
			zlog.Debug().Err(err).Msg("api: subscriber stream closed")
			return nil
		}
		lastSent = time.Now()
	}
}

func (s *PlayerService) status() *connect.Response[Status] {
	return connect.NewResponse(toStatus(s.player.Snapshot(), s.player.SequenceNo()))
}

// ensureStorage fails the call when content cannot be written.
func (s *PlayerService) ensureStorage() error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Ensure(); err != nil {
		if errors.Is(err, storage.ErrStorageUnavailable) {
			return connect.NewError(connect.CodeFailedPrecondition, err)
		}
		return connect.NewError(connect.CodeInternal, err)
	}
	return nil
}

func applied(ok bool) *connect.Response[Applied] {
	return connect.NewResponse(&Applied{Applied: ok})
}

// signal sets a level-triggered flag without blocking the notifier.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
