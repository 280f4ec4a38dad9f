// Package beep provides an in-process playback engine built on gopxl/beep.
package beep

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/engine"
)

// ErrAudioUnavailable is returned when the build has no audio output support.
var ErrAudioUnavailable = errors.New("audio output is not available in this build")

// audio is the local output device.
type audio interface {
	load(path string, onDone func()) error
	pause()
	resume()
	stop()
	seek(d time.Duration) error
	position() time.Duration
	duration() time.Duration
}

// Engine is an engine.Engine playing files through the local speaker.
type Engine struct {
	out      audio
	interval time.Duration

	path       string
	title      string
	artwork    string
	generation uint64
	playing    bool

	done chan uint64 // Generation of a file that reached its end
}

var _ engine.Engine = (*Engine)(nil)

// New creates a new beep engine. It fails with ErrAudioUnavailable when
// the binary was built without audio support.
func New(positionInterval time.Duration) (*Engine, error) {
	out, err := newPlayer()
	if err != nil {
		return nil, err
	}
	return newEngine(out, positionInterval), nil
}

func newEngine(out audio, positionInterval time.Duration) *Engine {
	if positionInterval <= 0 {
		positionInterval = time.Second
	}
	return &Engine{
		out:      out,
		interval: positionInterval,
		done:     make(chan uint64, 1),
	}
}

// Run plays commands until ctx is done or commands is closed.
func (e *Engine) Run(ctx context.Context, commands <-chan engine.Command, events chan<- engine.Event) error {
	zlog.Info().Msg("beep: engine started")
	defer func() {
		e.out.stop()
		zlog.Info().Msg("beep: engine stopped")
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			e.handle(ctx, cmd, events)
		case gen := <-e.done:
			e.complete(ctx, gen, events)
		case <-ticker.C:
			e.tick(events)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd engine.Command, events chan<- engine.Event) {
	zlog.Debug().Msgf("beep: command: %s", cmd.Type)

	switch cmd.Type {
	case engine.CommandPlayPath:
		e.path = cmd.Path
		e.title = cmd.Title
		e.artwork = cmd.Artwork
		e.generation = cmd.Generation
		e.playing = false

		gen := cmd.Generation
		err := e.out.load(cmd.Path, func() {
			select {
			case e.done <- gen:
			default:
			}
		})
		if err != nil {
			e.fail(ctx, events, errors.Wrapf(err, "failed to play %s", cmd.Path))
			return
		}
		e.playing = true
		e.state(ctx, events)

	case engine.CommandPlay:
		if e.path == "" {
			return
		}
		e.out.resume()
		e.playing = true
		e.state(ctx, events)

	case engine.CommandPause:
		if e.path == "" {
			return
		}
		e.out.pause()
		e.playing = false
		e.state(ctx, events)

	case engine.CommandStop:
		e.out.stop()
		e.path = ""
		e.playing = false

	case engine.CommandSeekTo:
		if err := e.out.seek(time.Duration(cmd.SeekMs) * time.Millisecond); err != nil {
			e.fail(ctx, events, errors.Wrap(err, "seek failed"))
			return
		}
		e.tick(events)

	default:
		zlog.Warn().Msgf("beep: unknown command: %d", cmd.Type)
	}
}

// complete reports the end of the file started with generation gen.
func (e *Engine) complete(ctx context.Context, gen uint64, events chan<- engine.Event) {
	if e.path == "" || gen != e.generation {
		return
	}
	zlog.Debug().Msgf("beep: track completed: path=%s", e.path)
	engine.Emit(ctx, events, e.event(engine.EventTrackCompleted))
	e.path = ""
	e.playing = false
}

func (e *Engine) tick(events chan<- engine.Event) {
	if e.path == "" {
		return
	}
	ev := e.event(engine.EventPlaybackPosition)
	ev.PositionMs = int(e.out.position().Milliseconds())
	ev.DurationMs = int(e.out.duration().Milliseconds())
	engine.TryEmit(events, ev)
}

func (e *Engine) state(ctx context.Context, events chan<- engine.Event) {
	ev := e.event(engine.EventPlaybackState)
	ev.Playing = e.playing
	engine.Emit(ctx, events, ev)
}

func (e *Engine) fail(ctx context.Context, events chan<- engine.Event, err error) {
	zlog.Warn().Err(err).Msg("beep: engine error")
	ev := e.event(engine.EventPlaybackState)
	ev.Error = err.Error()
	engine.Emit(ctx, events, ev)
}

func (e *Engine) event(t engine.EventType) engine.Event {
	return engine.Event{
		Type:       t,
		Title:      e.title,
		ArtworkRef: e.artwork,
		ContentRef: e.path,
		Generation: e.generation,
	}
}
