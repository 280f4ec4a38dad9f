package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trakify/internal/app/notification"
	"github.com/osa030/trakify/internal/app/resolution"
	"github.com/osa030/trakify/internal/domain/track"
	"github.com/osa030/trakify/internal/engine"
)

// fakeScheduler records submissions without running anything.
type fakeScheduler struct {
	mu         sync.Mutex
	submitted  []track.QueueItem
	admission  resolution.Admission
	prefetched []string
	claim      resolution.ClaimFunc
}

func (f *fakeScheduler) Submit(item track.QueueItem) resolution.Admission {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, item)
	return f.admission
}

func (f *fakeScheduler) Prefetch(ctx context.Context, itemIDs []string, claim resolution.ClaimFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, itemIDs...)
	f.claim = claim
}

func (f *fakeScheduler) submissions() []track.QueueItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]track.QueueItem(nil), f.submitted...)
}

// fakeFS answers content existence checks.
type fakeFS struct {
	mu    sync.Mutex
	files map[string]bool
}

func (f *fakeFS) add(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = true
}

func (f *fakeFS) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

func (f *fakeFS) exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

type recorder struct {
	mu     sync.Mutex
	played []string
}

func (r *recorder) RecordPlay(item track.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, item.Title)
	return nil
}

type harness struct {
	c     *Coordinator
	cmds  chan engine.Command
	sched *fakeScheduler
	fs    *fakeFS
	rec   *recorder
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		cmds:  make(chan engine.Command, 256),
		sched: &fakeScheduler{admission: resolution.Accepted},
		fs:    &fakeFS{files: map[string]bool{}},
		rec:   &recorder{},
	}
	h.c = NewCoordinator(cfg, h.cmds, h.sched, WithContentCheck(h.fs.exists), WithRecorder(h.rec))
	return h
}

// drain returns every command sent so far.
func (h *harness) drain() []engine.Command {
	var out []engine.Command
	for {
		select {
		case cmd := <-h.cmds:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func (h *harness) lastPlayPath(t *testing.T) engine.Command {
	t.Helper()
	var last *engine.Command
	for _, cmd := range h.drain() {
		if cmd.Type == engine.CommandPlayPath {
			c := cmd
			last = &c
		}
	}
	require.NotNil(t, last, "expected a PlayPath command")
	return *last
}

func titles(items ...string) []track.QueueItem {
	out := make([]track.QueueItem, len(items))
	for i, title := range items {
		out[i] = track.QueueItem{Title: title}
	}
	return out
}

func resolved(h *harness, items ...string) []track.QueueItem {
	out := make([]track.QueueItem, len(items))
	for i, title := range items {
		path := "/music/" + title + ".mp3"
		h.fs.add(path)
		out[i] = track.QueueItem{Title: title, ContentRef: path}
	}
	return out
}

func TestCoordinator_ScenarioA_Wraparound(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(titles("A", "B", "C"), "")
	assert.Equal(t, 0, h.c.CurrentIndex())

	assert.True(t, h.c.PlayNext())
	assert.Equal(t, 1, h.c.CurrentIndex())

	h.c.PlayNext()
	h.c.PlayNext()
	assert.Equal(t, 0, h.c.CurrentIndex(), "wraps after the last item")

	assert.True(t, h.c.PlayPrevious())
	assert.Equal(t, 2, h.c.CurrentIndex(), "previous wraps to the tail")
}

func TestCoordinator_RepeatStop(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Repeat = RepeatStop })
	h.c.SetQueue(resolved(h, "A", "B"), "")

	require.True(t, h.c.PlayAt(1))
	assert.False(t, h.c.HasNext())
	assert.False(t, h.c.PlayNext(), "no wrap in stop mode")
	assert.Equal(t, 1, h.c.CurrentIndex())
	assert.Equal(t, PhaseBuffering, h.c.Snapshot().Phase, "explicit next at the end keeps playing")

	gen := h.lastPlayPath(t).Generation
	h.c.HandleEvent(engine.Event{Type: engine.EventTrackCompleted, ContentRef: "/music/B.mp3", Generation: gen})
	assert.Equal(t, PhaseIdle, h.c.Snapshot().Phase, "completion of the last item stops")
	assert.Empty(t, h.drain(), "nothing new is played")

	require.True(t, h.c.PlayAt(0))
	h.c.PlayPrevious()
	assert.Equal(t, 0, h.c.CurrentIndex(), "previous never wraps in stop mode")
}

func TestCoordinator_RepeatStopPreviousUsesHistory(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Repeat = RepeatStop })
	h.c.SetQueue(resolved(h, "A", "B"), "")
	require.True(t, h.c.PlayAt(1))
	require.True(t, h.c.PlayAt(0))
	h.drain()

	assert.True(t, h.c.PlayPrevious())
	cmd := h.lastPlayPath(t)
	assert.Equal(t, "/music/B.mp3", cmd.Path, "the last history entry is replayed")
	assert.Equal(t, 0, h.c.CurrentIndex(), "selection is unchanged")
}

func TestCoordinator_CurrentIndexStaysInBounds(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, -1, h.c.CurrentIndex())
	assert.False(t, h.c.PlayNext())
	assert.False(t, h.c.PlayPrevious())

	for size := 1; size <= 5; size++ {
		h.c.SetQueue(resolved(h, names(size)...), "")
		for step := 0; step < 3*size; step++ {
			if step%3 == 0 {
				h.c.PlayPrevious()
			} else {
				h.c.PlayNext()
			}
			idx := h.c.CurrentIndex()
			assert.GreaterOrEqual(t, idx, -1)
			assert.LessOrEqual(t, idx, size-1)
		}
		h.drain()
	}

	assert.False(t, h.c.PlayAt(5), "out of range is a no-effect call")
	assert.False(t, h.c.PlayAt(-1))
	h.c.Clear()
	assert.Equal(t, -1, h.c.CurrentIndex())
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("T%d", i)
	}
	return out
}

func TestCoordinator_ScenarioB_SingleResolutionPerItem(t *testing.T) {
	h := newHarness(t)
	h.c.Enqueue(track.QueueItem{Title: "X"})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.c.PlayAt(0)
		}()
	}
	wg.Wait()

	assert.Len(t, h.sched.submissions(), 1)
	assert.True(t, h.c.Queue()[0].Resolving)
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)
}

func TestCoordinator_ScenarioC_StaleResult(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(titles("A", "B"), "")
	require.True(t, h.c.PlayAt(0))
	itemA := h.sched.submissions()[0]

	require.True(t, h.c.PlayNext())
	h.drain()

	h.fs.add("/music/A.mp3")
	h.c.CompleteResolution(resolution.Result{ItemID: itemA.ID, Title: "A", ContentRef: "/music/A.mp3"})

	for _, cmd := range h.drain() {
		assert.NotEqual(t, engine.CommandPlayPath, cmd.Type, "stale result must not play")
	}
	queue := h.c.Queue()
	assert.Equal(t, "/music/A.mp3", queue[0].ContentRef, "stale result is kept for reuse")
	assert.False(t, queue[0].Resolving)
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)
	assert.Equal(t, "B", h.c.Snapshot().Title)

	// Going back plays the cached content without resolving again.
	before := len(h.sched.submissions())
	require.True(t, h.c.PlayPrevious())
	assert.Equal(t, "/music/A.mp3", h.lastPlayPath(t).Path)
	assert.Len(t, h.sched.submissions(), before)
}

func TestCoordinator_ResolutionCompletesForCurrentItem(t *testing.T) {
	h := newHarness(t)
	h.c.Enqueue(track.QueueItem{Title: "X", Artist: "Y"})
	require.True(t, h.c.PlayAt(0))
	item := h.sched.submissions()[0]

	h.fs.add("/music/Y_X.mp3")
	h.c.CompleteResolution(resolution.Result{ItemID: item.ID, Title: "X", ContentRef: "/music/Y_X.mp3"})

	cmd := h.lastPlayPath(t)
	assert.Equal(t, "/music/Y_X.mp3", cmd.Path)
	assert.Equal(t, "X", cmd.Title)
	snap := h.c.Snapshot()
	assert.Equal(t, PhaseBuffering, snap.Phase)
	assert.Equal(t, "/music/Y_X.mp3", snap.ContentRef)
	assert.Equal(t, []string{"X"}, h.rec.played)
}

func TestCoordinator_ResolutionFailureOfCurrentItem(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(titles("A", "B"), "")
	require.True(t, h.c.PlayAt(0))
	item := h.sched.submissions()[0]

	h.c.CompleteResolution(resolution.Result{
		ItemID: item.ID,
		Title:  "A",
		Err:    errors.Wrap(resolution.ErrResolutionFailed, "no content found"),
	})

	snap := h.c.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Contains(t, snap.LastError, "resolution failed")
	assert.False(t, h.c.Queue()[0].Resolving)
	assert.Empty(t, h.c.Queue()[0].ContentRef)

	// Selecting again retries.
	require.True(t, h.c.PlayAt(0))
	assert.Len(t, h.sched.submissions(), 2)
}

func TestCoordinator_ResolutionFailureOfOtherItemIsSilent(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(titles("A", "B"), "")
	require.True(t, h.c.PlayAt(0))
	itemA := h.sched.submissions()[0]
	require.True(t, h.c.PlayNext())

	h.c.CompleteResolution(resolution.Result{ItemID: itemA.ID, Err: resolution.ErrResolutionFailed})
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)
}

func TestCoordinator_ResultForClearedQueueIsDropped(t *testing.T) {
	h := newHarness(t)
	h.c.Enqueue(track.QueueItem{Title: "X"})
	require.True(t, h.c.PlayAt(0))
	item := h.sched.submissions()[0]
	h.c.Clear()
	h.drain()

	h.c.CompleteResolution(resolution.Result{ItemID: item.ID, ContentRef: "/music/X.mp3"})
	assert.Empty(t, h.drain())
	assert.Empty(t, h.c.Queue())
	assert.Equal(t, PhaseIdle, h.c.Snapshot().Phase)
}

func TestCoordinator_RejectedSubmissionIsAnError(t *testing.T) {
	h := newHarness(t)
	h.sched.admission = resolution.Rejected
	h.c.Enqueue(track.QueueItem{Title: "X"})
	require.True(t, h.c.PlayAt(0))

	snap := h.c.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.False(t, snap.Queue[0].Resolving)
	assert.True(t, errors.Is(h.c.state.lastErr, ErrResolutionBacklog))
}

func TestCoordinator_AlreadyInFlightMarksResolving(t *testing.T) {
	h := newHarness(t)
	h.sched.admission = resolution.AlreadyInFlight
	h.c.Enqueue(track.QueueItem{Title: "X"})
	require.True(t, h.c.PlayAt(0))
	assert.True(t, h.c.Queue()[0].Resolving)
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)
}

func TestCoordinator_ScenarioD_DurationEndsLoading(t *testing.T) {
	h := newHarness(t)
	h.c.Enqueue(track.QueueItem{Title: "X"})
	require.True(t, h.c.PlayAt(0))
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, PositionMs: 0, DurationMs: 0})
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, PositionMs: 10, DurationMs: 180000})
	snap := h.c.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.Equal(t, 180000, snap.DurationMs)

	// Same for Buffering.
	h2 := newHarness(t)
	h2.c.SetQueue(resolved(h2, "A"), "")
	require.True(t, h2.c.PlayAt(0))
	gen := h2.lastPlayPath(t).Generation
	h2.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, DurationMs: 0, ContentRef: "/music/A.mp3", Generation: gen})
	assert.Equal(t, PhaseBuffering, h2.c.Snapshot().Phase)
	h2.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, DurationMs: 180000, ContentRef: "/music/A.mp3", Generation: gen})
	assert.Equal(t, PhasePlaying, h2.c.Snapshot().Phase)
}

func TestCoordinator_UpdateContentRefFirstTitleOnly(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue([]track.QueueItem{
		{Title: "Intro", Artist: "A"},
		{Title: "Intro", Artist: "B"},
	}, "")
	h.c.PlayAt(1)
	h.drain()

	assert.True(t, h.c.UpdateContentRef("Intro", "/music/intro.mp3", "art"))
	queue := h.c.Queue()
	assert.Equal(t, "/music/intro.mp3", queue[0].ContentRef)
	assert.Equal(t, "art", queue[0].ArtworkRef)
	assert.Empty(t, queue[1].ContentRef, "only the first occurrence is updated")
	for _, cmd := range h.drain() {
		assert.NotEqual(t, engine.CommandPlayPath, cmd.Type, "item 0 is not current")
	}

	assert.False(t, h.c.UpdateContentRef("Outro", "/x.mp3", ""))
}

func TestCoordinator_UpdateContentRefByIDPlaysCurrent(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue([]track.QueueItem{{Title: "Intro"}, {Title: "Intro"}}, "")
	h.c.PlayAt(1)
	id := h.c.Queue()[1].ID

	assert.True(t, h.c.UpdateContentRefByID(id, "/music/intro-b.mp3", ""))
	assert.Equal(t, "/music/intro-b.mp3", h.lastPlayPath(t).Path)
	assert.Empty(t, h.c.Queue()[0].ContentRef)

	// Repeating the update does not restart playback.
	assert.True(t, h.c.UpdateContentRefByID(id, "/music/intro-b.mp3", ""))
	assert.Empty(t, h.drain())

	assert.False(t, h.c.UpdateContentRefByID("missing", "/x.mp3", ""))
}

func TestCoordinator_SetQueueIdempotent(t *testing.T) {
	items := []track.QueueItem{
		{ID: "1", Title: "A", ContentRef: "/music/A.mp3"},
		{ID: "2", Title: "B", ArtworkRef: "own"},
	}

	h := newHarness(t)
	h.c.SetQueue(items, "album-art")
	first := h.c.Snapshot()
	h.c.SetQueue(items, "album-art")
	second := h.c.Snapshot()

	assert.Equal(t, first.CurrentIndex, second.CurrentIndex)
	assert.Equal(t, 0, second.CurrentIndex)
	require.Len(t, second.Queue, 2)
	for i := range first.Queue {
		assert.Equal(t, first.Queue[i].ID, second.Queue[i].ID)
		assert.Equal(t, first.Queue[i].Title, second.Queue[i].Title)
		assert.Equal(t, first.Queue[i].ContentRef, second.Queue[i].ContentRef)
		assert.Equal(t, first.Queue[i].ArtworkRef, second.Queue[i].ArtworkRef)
	}
	assert.Equal(t, "album-art", second.Queue[0].ArtworkRef, "missing artwork is backfilled")
	assert.Equal(t, "own", second.Queue[1].ArtworkRef)
	assert.Empty(t, h.drain(), "setQueue does not start playback")

	h.c.SetQueue(nil, "")
	assert.Equal(t, -1, h.c.CurrentIndex())
}

func TestCoordinator_EnqueueSelectsFirstItem(t *testing.T) {
	h := newHarness(t)
	stored := h.c.Enqueue(track.QueueItem{Title: "X"})
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, 0, h.c.CurrentIndex())

	h.c.Enqueue(track.QueueItem{Title: "Y"})
	assert.Equal(t, 0, h.c.CurrentIndex())
	assert.Len(t, h.c.Queue(), 2)
	assert.Empty(t, h.drain())
}

func TestCoordinator_VanishedContentIsResolvedAgain(t *testing.T) {
	h := newHarness(t)
	h.fs.add("/music/X.mp3")
	h.c.Enqueue(track.QueueItem{Title: "X", ContentRef: "/music/X.mp3"})
	require.True(t, h.c.PlayAt(0))
	assert.Equal(t, "/music/X.mp3", h.lastPlayPath(t).Path)
	assert.Empty(t, h.sched.submissions())

	h.fs.remove("/music/X.mp3")
	require.True(t, h.c.PlayAt(0))

	assert.Len(t, h.sched.submissions(), 1, "a vanished file is treated as never resolved")
	assert.Empty(t, h.c.Queue()[0].ContentRef)
	assert.Equal(t, PhaseResolving, h.c.Snapshot().Phase)
}

func TestCoordinator_InvalidateContent(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	h.c.InvalidateContent("/music/A.mp3")

	queue := h.c.Queue()
	assert.Empty(t, queue[0].ContentRef)
	assert.Equal(t, "/music/B.mp3", queue[1].ContentRef)
}

func TestCoordinator_HistoryIsRecordedOnContentChange(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	require.True(t, h.c.PlayAt(0))
	require.True(t, h.c.PlayAt(0))
	assert.Empty(t, h.c.History(), "replaying the same content is not history")

	require.True(t, h.c.PlayNext())
	history := h.c.History()
	require.Len(t, history, 1)
	assert.Equal(t, "A", history[0].Title)
	assert.Equal(t, "/music/A.mp3", history[0].ContentRef)
	assert.Equal(t, []string{"A", "A", "B"}, h.rec.played)
}

func TestCoordinator_HistoryBounded(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, names(61)...), "")
	for i := 0; i <= 60; i++ {
		require.True(t, h.c.PlayAt(i))
		h.drain()
	}

	history := h.c.History()
	require.Len(t, history, DefaultHistorySize)
	assert.Equal(t, "T10", history[0].Title, "oldest 10 evicted")
	assert.Equal(t, "T59", history[len(history)-1].Title)
}

func TestCoordinator_HasNextHasPrevious(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.c.HasNext())
	assert.False(t, h.c.HasPrevious())

	h.c.SetQueue(resolved(h, "A"), "")
	assert.False(t, h.c.HasNext(), "single item has no next")
	assert.False(t, h.c.HasPrevious())

	h.c.SetQueue(resolved(h, "A", "B"), "")
	assert.True(t, h.c.HasNext())
	require.True(t, h.c.PlayAt(1))
	assert.True(t, h.c.HasNext(), "wraps in loop mode")
	assert.True(t, h.c.HasPrevious())
}

func TestCoordinator_SkipBackRestartsAfterThreshold(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	require.True(t, h.c.PlayAt(1))
	gen := h.lastPlayPath(t).Generation

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, PositionMs: 6000, DurationMs: 180000, Generation: gen})
	assert.True(t, h.c.ShouldRestart())
	assert.True(t, h.c.HasPrevious())

	require.True(t, h.c.SkipBack())
	cmds := h.drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, engine.CommandSeekTo, cmds[0].Type)
	assert.Equal(t, 0, cmds[0].SeekMs)
	assert.Equal(t, 1, h.c.CurrentIndex())

	require.True(t, h.c.SkipBack())
	assert.Equal(t, 0, h.c.CurrentIndex())
}

func TestCoordinator_TransportEvents(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B", "C"), "")
	h.c.PlayAt(0)

	h.c.HandleEvent(engine.Event{Type: engine.EventNextRequested})
	assert.Equal(t, 1, h.c.CurrentIndex())
	h.c.HandleEvent(engine.Event{Type: engine.EventPreviousRequested})
	assert.Equal(t, 0, h.c.CurrentIndex())
}

func TestCoordinator_TrackCompletedAdvances(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	h.c.PlayAt(0)
	gen := h.lastPlayPath(t).Generation

	h.c.HandleEvent(engine.Event{Type: engine.EventTrackCompleted, ContentRef: "/music/A.mp3", Generation: gen})
	assert.Equal(t, 1, h.c.CurrentIndex())
	assert.Equal(t, "/music/B.mp3", h.lastPlayPath(t).Path)
}

func TestCoordinator_StaleEngineEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	h.c.PlayAt(0)
	oldGen := h.lastPlayPath(t).Generation
	h.c.PlayAt(1)
	h.drain()

	h.c.HandleEvent(engine.Event{Type: engine.EventTrackCompleted, ContentRef: "/music/A.mp3", Generation: oldGen})
	assert.Equal(t, 1, h.c.CurrentIndex(), "completion of the previous file is ignored")
	assert.Empty(t, h.drain())

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, PositionMs: 999, DurationMs: 1000, ContentRef: "/music/A.mp3"})
	assert.Equal(t, 0, h.c.Snapshot().PositionMs)
}

func TestCoordinator_PlaybackStateTransitions(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A"), "")
	h.c.PlayAt(0)
	gen := h.lastPlayPath(t).Generation

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackState, Playing: true, Generation: gen})
	assert.Equal(t, PhasePlaying, h.c.Snapshot().Phase)

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackState, Generation: gen})
	assert.Equal(t, PhasePaused, h.c.Snapshot().Phase)

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackState, Buffering: true, Generation: gen})
	assert.Equal(t, PhaseBuffering, h.c.Snapshot().Phase)

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackState, Playing: true, Error: "decoder failed", Generation: gen})
	snap := h.c.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase, "error overrides playing")
	assert.Contains(t, snap.LastError, "decoder failed")

	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackState, Title: "Engine Title", Playing: true, Generation: gen})
	snap = h.c.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.Equal(t, "Engine Title", snap.Title)
	assert.Empty(t, snap.LastError)
}

func TestCoordinator_TransportCommands(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.c.Pause())
	assert.False(t, h.c.Resume())
	assert.False(t, h.c.Stop())
	assert.False(t, h.c.SeekTo(1000))

	h.c.SetQueue(resolved(h, "A"), "")
	h.c.PlayAt(0)
	h.drain()

	assert.True(t, h.c.Pause())
	assert.Equal(t, PhasePaused, h.c.Snapshot().Phase)
	assert.True(t, h.c.Resume())
	assert.Equal(t, PhasePlaying, h.c.Snapshot().Phase)
	assert.True(t, h.c.SeekTo(-5))
	assert.True(t, h.c.Stop())

	cmds := h.drain()
	require.Len(t, cmds, 4)
	assert.Equal(t, engine.CommandPause, cmds[0].Type)
	assert.Equal(t, engine.CommandPlay, cmds[1].Type)
	assert.Equal(t, engine.CommandSeekTo, cmds[2].Type)
	assert.Equal(t, 0, cmds[2].SeekMs, "negative positions are clamped")
	assert.Equal(t, engine.CommandStop, cmds[3].Type)

	snap := h.c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Title)
	assert.Equal(t, 0, snap.CurrentIndex, "stop keeps the selection")
}

func TestCoordinator_Subscribers(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var states, positions int
	id := h.c.RegisterSubscriber(notification.SubscriberFuncs{
		StateChanged: func() {
			mu.Lock()
			states++
			mu.Unlock()
			// Reading a snapshot from the callback must not deadlock.
			_ = h.c.Snapshot()
		},
		PositionUpdated: func() {
			mu.Lock()
			positions++
			mu.Unlock()
		},
	})

	h.c.SetQueue(resolved(h, "A"), "")
	h.c.PlayAt(0)
	h.c.HandleEvent(engine.Event{Type: engine.EventPlaybackPosition, PositionMs: 1, DurationMs: 0})

	mu.Lock()
	assert.Equal(t, 2, states)
	assert.Equal(t, 1, positions)
	mu.Unlock()

	h.c.UnregisterSubscriber(id)
	h.c.Clear()
	mu.Lock()
	assert.Equal(t, 2, states)
	mu.Unlock()
}

func TestCoordinator_Prefetch(t *testing.T) {
	h := newHarness(t)
	items := resolved(h, "A")
	items = append(items, titles("B", "C")...)
	h.c.SetQueue(items, "")

	n := h.c.Prefetch(context.Background())
	assert.Equal(t, 2, n)
	queue := h.c.Queue()
	assert.Equal(t, []string{queue[1].ID, queue[2].ID}, h.sched.prefetched)

	claimed, ok := h.sched.claim(queue[1].ID)
	require.True(t, ok)
	assert.Equal(t, "B", claimed.Title)
	assert.True(t, h.c.Queue()[1].Resolving)

	_, ok = h.sched.claim(queue[1].ID)
	assert.False(t, ok, "an item is claimed once")
	_, ok = h.sched.claim(queue[0].ID)
	assert.False(t, ok, "playable items are not claimed")
	_, ok = h.sched.claim("gone")
	assert.False(t, ok)
}

func TestCoordinator_RunConsumesEvents(t *testing.T) {
	h := newHarness(t)
	h.c.SetQueue(resolved(h, "A", "B"), "")
	h.c.PlayAt(0)

	events := make(chan engine.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx, events) }()

	events <- engine.Event{Type: engine.EventNextRequested}
	close(events)
	require.NoError(t, <-done)
	cancel()
	assert.Equal(t, 1, h.c.CurrentIndex())
}
