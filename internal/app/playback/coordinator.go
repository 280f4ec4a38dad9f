package playback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/trakify/internal/app/notification"
	"github.com/osa030/trakify/internal/app/resolution"
	"github.com/osa030/trakify/internal/domain/track"
	"github.com/osa030/trakify/internal/engine"
	"github.com/osa030/trakify/internal/infra/storage"
)

// Errors
var (
	ErrEngine             = errors.New("engine error")
	ErrResolutionBacklog  = errors.New("resolution queue is full")
	ErrContentUnavailable = errors.New("content unavailable")
)

// Scheduler runs content resolution in the background.
// Implementations must not call back into the coordinator from Submit.
type Scheduler interface {
	Submit(item track.QueueItem) resolution.Admission
	Prefetch(ctx context.Context, itemIDs []string, claim resolution.ClaimFunc)
}

// PlayRecorder persists every play command issued.
type PlayRecorder interface {
	RecordPlay(item track.QueueItem) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the persistent play recorder.
func WithRecorder(r PlayRecorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithContentCheck replaces the content existence check.
func WithContentCheck(exists func(path string) bool) Option {
	return func(c *Coordinator) { c.contentExists = exists }
}

// WithRegistry sets the subscriber registry.
func WithRegistry(r *notification.Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// Coordinator owns the play queue, the current selection and the playback state.
// All of them are guarded by a single mutex; subscribers are notified after it
// is released.
type Coordinator struct {
	mu sync.Mutex

	// Queue management
	queue        []track.QueueItem
	currentIndex int
	albumArtwork string
	history      *History

	// Playback state
	state      playbackState
	itemID     string // ID of the item state refers to
	generation uint64 // Incremented on every PlayPath command

	config        Config
	commands      chan<- engine.Command
	scheduler     Scheduler
	registry      *notification.Registry
	recorder      PlayRecorder
	contentExists func(string) bool
}

// effects collects what must happen after the lock is released.
type effects struct {
	stateChanged    bool
	positionUpdated bool
	played          []track.QueueItem
}

// NewCoordinator creates a new queue coordinator.
func NewCoordinator(config Config, commands chan<- engine.Command, scheduler Scheduler, opts ...Option) *Coordinator {
	if config.Repeat == "" {
		config.Repeat = RepeatLoop
	}
	c := &Coordinator{
		queue:         make([]track.QueueItem, 0),
		currentIndex:  -1,
		history:       NewHistory(config.HistorySize),
		config:        config,
		commands:      commands,
		scheduler:     scheduler,
		contentExists: storage.Exists,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = notification.NewRegistry()
	}
	return c
}

// SetQueue replaces the queue. Items without artwork inherit albumArtwork.
// The current index becomes 0, or -1 for an empty list. Playback is not started.
func (c *Coordinator) SetQueue(items []track.QueueItem, albumArtwork string) {
	c.mu.Lock()
	queue := make([]track.QueueItem, len(items))
	for i, item := range items {
		item.EnsureID()
		item.Resolving = false
		if item.ArtworkRef == "" {
			item.ArtworkRef = albumArtwork
		}
		queue[i] = item
	}
	c.queue = queue
	c.albumArtwork = albumArtwork
	c.currentIndex = -1
	if len(queue) > 0 {
		c.currentIndex = 0
	}
	c.mu.Unlock()

	zlog.Debug().Msgf("playback: queue replaced: items=%d", len(items))
	c.flush(effects{stateChanged: true})
}

// Enqueue appends an item and returns it as stored (with its ID).
// An empty queue selects the new item without starting playback.
func (c *Coordinator) Enqueue(item track.QueueItem) track.QueueItem {
	item.EnsureID()
	item.Resolving = false

	c.mu.Lock()
	c.queue = append(c.queue, item)
	if c.currentIndex == -1 {
		c.currentIndex = 0
	}
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
	return item
}

// Clear empties the queue and resets the playback state.
// In-flight resolutions keep running; their results are cached but discarded.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.queue = make([]track.QueueItem, 0)
	c.currentIndex = -1
	if c.state.phase != PhaseIdle {
		c.sendCommandLocked(engine.Command{Type: engine.CommandStop})
	}
	c.state.reset()
	c.itemID = ""
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
}

// PlayAt selects the item at index and plays it, resolving it first if needed.
// Out of range indices are a no-effect call and return false.
func (c *Coordinator) PlayAt(index int) bool {
	var fx effects
	c.mu.Lock()
	ok := c.playAtLocked(index, &fx)
	c.mu.Unlock()

	c.flush(fx)
	return ok
}

// PlayNext advances the selection, wrapping in loop mode.
func (c *Coordinator) PlayNext() bool {
	var fx effects
	c.mu.Lock()
	ok := c.advanceLocked(false, &fx)
	c.mu.Unlock()

	c.flush(fx)
	return ok
}

// PlayPrevious moves the selection back, wrapping in loop mode.
// In stop mode at the head of the queue, the most recent history entry is replayed.
func (c *Coordinator) PlayPrevious() bool {
	var fx effects
	c.mu.Lock()
	ok := c.previousLocked(&fx)
	c.mu.Unlock()

	c.flush(fx)
	return ok
}

// SkipBack restarts the current item when it has played past the restart
// threshold and moves to the previous item otherwise.
func (c *Coordinator) SkipBack() bool {
	var fx effects
	c.mu.Lock()
	var ok bool
	if c.shouldRestartLocked() {
		ok = c.seekLocked(0, &fx)
	} else {
		ok = c.previousLocked(&fx)
	}
	c.mu.Unlock()

	c.flush(fx)
	return ok
}

// UpdateContentRef sets the content of the first item whose title matches.
// Kept for callers that only know the title; duplicates beyond the first are
// not updated. Prefer UpdateContentRefByID.
func (c *Coordinator) UpdateContentRef(title, contentRef, artworkRef string) bool {
	var fx effects
	c.mu.Lock()
	_, idx, found := lo.FindIndexOf(c.queue, func(item track.QueueItem) bool {
		return item.Title == title
	})
	if found {
		c.updateItemLocked(idx, contentRef, artworkRef, &fx)
	}
	c.mu.Unlock()

	c.flush(fx)
	return found
}

// UpdateContentRefByID sets the content of the item with the given ID.
func (c *Coordinator) UpdateContentRefByID(id, contentRef, artworkRef string) bool {
	var fx effects
	c.mu.Lock()
	idx := c.indexOfLocked(id)
	if idx >= 0 {
		c.updateItemLocked(idx, contentRef, artworkRef, &fx)
	}
	c.mu.Unlock()

	c.flush(fx)
	return idx >= 0
}

// CompleteResolution applies a finished resolution. Results for items that
// left the queue are dropped; results for items that are no longer selected
// only update the item.
func (c *Coordinator) CompleteResolution(res resolution.Result) {
	var fx effects
	c.mu.Lock()
	idx := c.indexOfLocked(res.ItemID)
	if idx < 0 {
		c.mu.Unlock()
		zlog.Debug().Msgf("playback: resolution result for removed item dropped: id=%s title=%s", res.ItemID, res.Title)
		return
	}

	item := &c.queue[idx]
	item.Resolving = false
	fx.stateChanged = true
	awaited := idx == c.currentIndex && c.itemID == item.ID && c.state.phase == PhaseResolving

	if res.Err != nil {
		zlog.Warn().Err(res.Err).Msgf("playback: resolution failed: title=%s", item.Title)
		if awaited {
			c.failLocked(res.Err)
		}
	} else {
		item.ContentRef = res.ContentRef
		if awaited {
			c.playLocked(*item, true, &fx)
		}
	}
	c.mu.Unlock()

	c.flush(fx)
}

// InvalidateContent forgets every reference to a content file that disappeared.
// Affected items are resolved again when next selected.
func (c *Coordinator) InvalidateContent(path string) {
	var fx effects
	c.mu.Lock()
	for i := range c.queue {
		if c.queue[i].ContentRef == path {
			c.queue[i].ContentRef = ""
			fx.stateChanged = true
		}
	}
	c.mu.Unlock()

	if fx.stateChanged {
		zlog.Info().Msgf("playback: content removed from storage: path=%s", path)
	}
	c.flush(fx)
}

// Prefetch hands every unresolved item to the scheduler for paced bulk
// resolution. Returns the number of items handed over.
func (c *Coordinator) Prefetch(ctx context.Context) int {
	c.mu.Lock()
	ids := lo.FilterMap(c.queue, func(item track.QueueItem, _ int) (string, bool) {
		return item.ID, !item.Resolving && !c.playableLocked(item)
	})
	c.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}
	c.scheduler.Prefetch(ctx, ids, c.claimForResolution)
	return len(ids)
}

// Pause pauses the current playback.
func (c *Coordinator) Pause() bool {
	c.mu.Lock()
	if c.state.phase != PhasePlaying && c.state.phase != PhaseBuffering {
		c.mu.Unlock()
		return false
	}
	c.sendCommandLocked(engine.Command{Type: engine.CommandPause})
	c.state.phase = PhasePaused
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
	return true
}

// Resume resumes paused playback.
func (c *Coordinator) Resume() bool {
	c.mu.Lock()
	if c.state.phase != PhasePaused {
		c.mu.Unlock()
		return false
	}
	c.sendCommandLocked(engine.Command{Type: engine.CommandPlay})
	c.state.phase = PhasePlaying
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
	return true
}

// Stop stops playback. The queue and the current index are kept.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	if c.state.phase == PhaseIdle {
		c.mu.Unlock()
		return false
	}
	c.sendCommandLocked(engine.Command{Type: engine.CommandStop})
	c.state.reset()
	c.itemID = ""
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
	return true
}

// SeekTo seeks within the current content.
func (c *Coordinator) SeekTo(positionMs int) bool {
	var fx effects
	c.mu.Lock()
	ok := c.seekLocked(positionMs, &fx)
	c.mu.Unlock()

	c.flush(fx)
	return ok
}

// HasNext reports whether PlayNext would select something.
func (c *Coordinator) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasNextLocked()
}

// HasPrevious reports whether "previous" has a meaningful effect: there is
// history, an earlier queue entry, or enough of the current item was played
// to restart it.
func (c *Coordinator) HasPrevious() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPreviousLocked()
}

// ShouldRestart reports whether the current item played past the restart threshold.
func (c *Coordinator) ShouldRestart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldRestartLocked()
}

// Snapshot returns a copy of the coordinator state.
func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := make([]track.QueueItem, len(c.queue))
	copy(queue, c.queue)

	status := Status{
		Phase:        c.state.phase,
		Title:        c.state.title,
		ContentRef:   c.state.contentRef,
		ArtworkRef:   c.state.artworkRef,
		PositionMs:   c.state.positionMs,
		DurationMs:   c.state.durationMs,
		CurrentIndex: c.currentIndex,
		Queue:        queue,
		HistoryLen:   c.history.Len(),
		Repeat:       c.config.Repeat,
		HasNext:      c.hasNextLocked(),
		HasPrevious:  c.hasPreviousLocked(),
	}
	if c.state.lastErr != nil {
		status.LastError = c.state.lastErr.Error()
	}
	return status
}

// Queue returns a copy of the queue.
func (c *Coordinator) Queue() []track.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]track.QueueItem, len(c.queue))
	copy(result, c.queue)
	return result
}

// CurrentIndex returns the selected index, or -1.
func (c *Coordinator) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentIndex
}

// History returns a copy of the play history, oldest first.
func (c *Coordinator) History() []track.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Entries()
}

// RegisterSubscriber adds a change subscriber and returns its ID.
func (c *Coordinator) RegisterSubscriber(sub notification.Subscriber) string {
	return c.registry.Subscribe(sub)
}

// UnregisterSubscriber removes a change subscriber.
func (c *Coordinator) UnregisterSubscriber(id string) {
	c.registry.Unsubscribe(id)
}

// SequenceNo returns the number of change notifications sent so far.
func (c *Coordinator) SequenceNo() uint64 {
	return c.registry.SequenceNo()
}

// playAtLocked must be called with lock held.
func (c *Coordinator) playAtLocked(index int, fx *effects) bool {
	if index < 0 || index >= len(c.queue) {
		zlog.Debug().Msgf("playback: index out of range: index=%d size=%d", index, len(c.queue))
		return false
	}
	c.currentIndex = index
	c.selectCurrentLocked(fx)
	return true
}

// selectCurrentLocked plays the current item, or starts resolving it.
// Must be called with lock held.
func (c *Coordinator) selectCurrentLocked(fx *effects) {
	item := &c.queue[c.currentIndex]
	fx.stateChanged = true

	if item.HasContent() {
		if c.contentExists(item.ContentRef) {
			c.playLocked(*item, true, fx)
			return
		}
		zlog.Info().Msgf("playback: content vanished, resolving again: title=%s path=%s", item.Title, item.ContentRef)
		item.ContentRef = ""
	}

	c.showResolvingLocked(*item)
	if item.Resolving {
		return
	}

	switch c.scheduler.Submit(*item) {
	case resolution.Accepted, resolution.AlreadyInFlight:
		item.Resolving = true
	default:
		zlog.Warn().Msgf("playback: resolution rejected: title=%s", item.Title)
		c.failLocked(errors.Wrapf(ErrResolutionBacklog, "cannot resolve %q", item.Title))
	}
}

// advanceLocked must be called with lock held.
func (c *Coordinator) advanceLocked(completed bool, fx *effects) bool {
	if len(c.queue) == 0 {
		return false
	}

	next := c.currentIndex + 1
	if next >= len(c.queue) {
		if c.config.Repeat == RepeatStop {
			if completed {
				c.state.phase = PhaseIdle
				c.state.positionMs = 0
				fx.stateChanged = true
			}
			return false
		}
		next = 0
	}
	return c.playAtLocked(next, fx)
}

// previousLocked must be called with lock held.
func (c *Coordinator) previousLocked(fx *effects) bool {
	if len(c.queue) == 0 {
		return false
	}

	prev := c.currentIndex - 1
	if prev < 0 {
		if c.config.Repeat == RepeatStop {
			return c.playFromHistoryLocked(fx)
		}
		prev = len(c.queue) - 1
	}
	return c.playAtLocked(prev, fx)
}

// playFromHistoryLocked replays the most recent playable history entry
// without changing the queue selection.
// Must be called with lock held.
func (c *Coordinator) playFromHistoryLocked(fx *effects) bool {
	for {
		entry, ok := c.history.Pop()
		if !ok {
			return false
		}
		if entry.HasContent() && c.contentExists(entry.ContentRef) {
			c.playLocked(entry, false, fx)
			return true
		}
	}
}

// updateItemLocked must be called with lock held.
func (c *Coordinator) updateItemLocked(idx int, contentRef, artworkRef string, fx *effects) {
	item := &c.queue[idx]
	item.ContentRef = contentRef
	item.Resolving = false
	if artworkRef != "" {
		item.ArtworkRef = artworkRef
	}
	fx.stateChanged = true

	if idx != c.currentIndex || contentRef == "" {
		return
	}
	if c.itemID == item.ID && c.state.contentRef == contentRef {
		// Already playing this content.
		return
	}
	c.playLocked(*item, true, fx)
}

// showResolvingLocked must be called with lock held.
func (c *Coordinator) showResolvingLocked(item track.QueueItem) {
	if c.state.contentRef != "" {
		c.recordHistoryLocked("")
		c.generation++
		c.sendCommandLocked(engine.Command{Type: engine.CommandStop})
	}
	c.state.reset()
	c.state.phase = PhaseResolving
	c.state.title = item.Title
	c.state.artworkRef = item.ArtworkRef
	c.itemID = item.ID
}

// playLocked issues a PlayPath command for the item.
// Must be called with lock held.
func (c *Coordinator) playLocked(item track.QueueItem, recordHistory bool, fx *effects) {
	if recordHistory {
		c.recordHistoryLocked(item.ContentRef)
	}
	c.generation++

	c.state.reset()
	c.state.phase = PhaseBuffering
	c.state.title = item.Title
	c.state.contentRef = item.ContentRef
	c.state.artworkRef = item.ArtworkRef
	c.itemID = item.ID

	zlog.Debug().Msgf("playback: play: title=%s path=%s generation=%d", item.Title, item.ContentRef, c.generation)
	c.sendCommandLocked(engine.Command{
		Type:       engine.CommandPlayPath,
		Path:       item.ContentRef,
		Title:      item.Title,
		Artwork:    item.ArtworkRef,
		Generation: c.generation,
	})

	fx.stateChanged = true
	fx.played = append(fx.played, item)
}

// recordHistoryLocked pushes the current content to history when it differs
// from the next one.
// Must be called with lock held.
func (c *Coordinator) recordHistoryLocked(nextRef string) {
	if c.state.contentRef == "" || c.state.contentRef == nextRef {
		return
	}
	c.history.Push(track.QueueItem{
		ID:         c.itemID,
		Title:      c.state.title,
		ContentRef: c.state.contentRef,
		ArtworkRef: c.state.artworkRef,
	})
}

// seekLocked must be called with lock held.
func (c *Coordinator) seekLocked(positionMs int, fx *effects) bool {
	if c.state.contentRef == "" {
		return false
	}
	positionMs = max(positionMs, 0)
	if c.state.durationMs > 0 {
		positionMs = min(positionMs, c.state.durationMs)
	}
	c.sendCommandLocked(engine.Command{Type: engine.CommandSeekTo, SeekMs: positionMs})
	c.state.positionMs = positionMs
	fx.positionUpdated = true
	return true
}

// failLocked must be called with lock held.
func (c *Coordinator) failLocked(err error) {
	c.state.phase = PhaseError
	c.state.lastErr = err
}

// claimForResolution marks an item as owned by a resolution job.
// It refuses items that left the queue, are being resolved or are playable.
func (c *Coordinator) claimForResolution(itemID string) (track.QueueItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOfLocked(itemID)
	if idx < 0 {
		return track.QueueItem{}, false
	}
	item := &c.queue[idx]
	if item.Resolving || c.playableLocked(*item) {
		return track.QueueItem{}, false
	}
	item.ContentRef = ""
	item.Resolving = true
	return *item, true
}

func (c *Coordinator) playableLocked(item track.QueueItem) bool {
	return item.HasContent() && c.contentExists(item.ContentRef)
}

func (c *Coordinator) hasNextLocked() bool {
	if len(c.queue) == 0 {
		return false
	}
	if c.config.Repeat == RepeatStop {
		return c.currentIndex < len(c.queue)-1
	}
	return c.currentIndex < len(c.queue)-1 || len(c.queue) > 1
}

func (c *Coordinator) hasPreviousLocked() bool {
	return c.history.Len() > 0 || c.currentIndex > 0 || c.shouldRestartLocked()
}

func (c *Coordinator) shouldRestartLocked() bool {
	return c.state.contentRef != "" &&
		c.state.positionMs > int(c.config.RestartThreshold.Milliseconds())
}

func (c *Coordinator) indexOfLocked(id string) int {
	_, idx, found := lo.FindIndexOf(c.queue, func(item track.QueueItem) bool {
		return item.ID == id
	})
	if !found {
		return -1
	}
	return idx
}

// sendCommandLocked sends a command without blocking.
// Must be called with lock held.
func (c *Coordinator) sendCommandLocked(cmd engine.Command) {
	select {
	case c.commands <- cmd:
	default:
		zlog.Warn().Msgf("playback: command channel full, dropping %s", cmd.Type)
	}
}

// flush runs the effects collected under the lock.
func (c *Coordinator) flush(fx effects) {
	if c.recorder != nil {
		for _, item := range fx.played {
			if err := c.recorder.RecordPlay(item); err != nil {
				zlog.Warn().Err(err).Msgf("playback: failed to record play: title=%s", item.Title)
			}
		}
	}
	if fx.stateChanged {
		c.registry.NotifyStateChanged()
	}
	if fx.positionUpdated {
		c.registry.NotifyPositionUpdated()
	}
}
