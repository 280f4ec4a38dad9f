package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/engine"
)

// Run consumes engine events until ctx is done or the channel is closed.
func (c *Coordinator) Run(ctx context.Context, events <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ev)
		}
	}
}

// HandleEvent applies one engine event.
func (c *Coordinator) HandleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventPlaybackState:
		c.onPlaybackState(ev)
	case engine.EventPlaybackPosition:
		c.onPlaybackPosition(ev)
	case engine.EventTrackCompleted:
		c.onTrackCompleted(ev)
	case engine.EventNextRequested:
		c.PlayNext()
	case engine.EventPreviousRequested:
		c.SkipBack()
	default:
		zlog.Warn().Msgf("playback: unknown engine event: %d", ev.Type)
	}
}

func (c *Coordinator) onPlaybackState(ev engine.Event) {
	c.mu.Lock()
	if c.staleLocked(ev) {
		c.mu.Unlock()
		return
	}

	if ev.Title != "" {
		c.state.title = ev.Title
	}
	if ev.ArtworkRef != "" {
		c.state.artworkRef = ev.ArtworkRef
	}

	switch {
	case ev.Error != "":
		zlog.Warn().Msgf("playback: engine error: %s", ev.Error)
		c.failLocked(errors.Wrap(ErrEngine, ev.Error))
	case ev.Buffering:
		c.state.phase = PhaseBuffering
	case ev.Playing:
		c.state.phase = PhasePlaying
		c.state.lastErr = nil
	case c.state.phase == PhasePlaying || c.state.phase == PhaseBuffering:
		c.state.phase = PhasePaused
	}
	c.mu.Unlock()

	c.flush(effects{stateChanged: true})
}

func (c *Coordinator) onPlaybackPosition(ev engine.Event) {
	fx := effects{positionUpdated: true}

	c.mu.Lock()
	if c.staleLocked(ev) {
		c.mu.Unlock()
		return
	}
	c.state.positionMs = ev.PositionMs
	c.state.durationMs = ev.DurationMs

	// A known duration means the engine has loaded the content.
	if ev.DurationMs > 0 && c.state.phase.Loading() {
		c.state.phase = PhasePlaying
		fx.stateChanged = true
	}
	c.mu.Unlock()

	c.flush(fx)
}

func (c *Coordinator) onTrackCompleted(ev engine.Event) {
	var fx effects
	c.mu.Lock()
	if c.staleLocked(ev) {
		c.mu.Unlock()
		return
	}
	c.advanceLocked(true, &fx)
	c.mu.Unlock()

	c.flush(fx)
}

// staleLocked reports whether the event refers to content other than the
// current one. Events without identity are accepted.
// Must be called with lock held.
func (c *Coordinator) staleLocked(ev engine.Event) bool {
	if ev.Generation != 0 && ev.Generation != c.generation {
		zlog.Debug().Msgf("playback: stale %s dropped: generation=%d current=%d", ev.Type, ev.Generation, c.generation)
		return true
	}
	if ev.ContentRef != "" && ev.ContentRef != c.state.contentRef {
		zlog.Debug().Msgf("playback: stale %s dropped: path=%s", ev.Type, ev.ContentRef)
		return true
	}
	return false
}
