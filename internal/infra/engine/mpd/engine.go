// Package mpd provides a playback engine that drives an MPD daemon.
package mpd

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	gompd "github.com/fhs/gompd/v2/mpd"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/engine"
)

// MPD player states as reported by the status command.
const (
	statePlay  = "play"
	statePause = "pause"
	stateStop  = "stop"
)

// Config represents MPD engine configuration.
type Config struct {
	Network          string        // "tcp" or "unix"
	Addr             string        // host:port or socket path
	Password         string        // Optional
	MusicDir         string        // MPD music_directory; files below it are added by relative URI
	PositionInterval time.Duration // Status polling interval
}

// conn is the subset of the gompd client used by the engine.
type conn interface {
	Clear() error
	Add(uri string) error
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	SeekCur(d time.Duration, relative bool) error
	Status() (gompd.Attrs, error)
	Ping() error
	Close() error
}

type dialFunc func(network, addr, password string) (conn, error)

func dialMPD(network, addr, password string) (conn, error) {
	c, err := gompd.DialAuthenticated(network, addr, password)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// loaded describes the file the engine was last asked to play.
type loaded struct {
	path       string
	title      string
	artwork    string
	generation uint64
	state      string // Last observed MPD state
	stopped    bool   // Stop was requested; a transition to stop is not a completion
}

// Engine is an engine.Engine backed by MPD.
type Engine struct {
	config  Config
	dial    dialFunc
	client  conn
	current loaded
}

var _ engine.Engine = (*Engine)(nil)

// New creates a new MPD engine. The connection is opened lazily.
func New(cfg Config) *Engine {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = time.Second
	}
	return &Engine{config: cfg, dial: dialMPD}
}

// Run executes commands and polls MPD until ctx is done or commands is closed.
func (e *Engine) Run(ctx context.Context, commands <-chan engine.Command, events chan<- engine.Event) error {
	zlog.Info().Msgf("mpd: engine started: network=%s addr=%s", e.config.Network, e.config.Addr)
	defer e.close()

	ticker := time.NewTicker(e.config.PositionInterval)
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
		case <-ticker.C:
			e.poll(ctx, events)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd engine.Command, events chan<- engine.Event) {
	zlog.Debug().Msgf("mpd: command: %s", cmd.Type)

	c, err := e.connect()
	if err != nil {
		e.fail(ctx, events, err)
		return
	}

	switch cmd.Type {
	case engine.CommandPlayPath:
		e.current = loaded{
			path:       cmd.Path,
			title:      cmd.Title,
			artwork:    cmd.Artwork,
			generation: cmd.Generation,
		}
		err = e.playPath(c, cmd.Path)
		if err == nil {
			engine.Emit(ctx, events, e.event(engine.EventPlaybackState, func(ev *engine.Event) {
				ev.Buffering = true
			}))
		}

	case engine.CommandPlay:
		err = c.Pause(false)

	case engine.CommandPause:
		err = c.Pause(true)

	case engine.CommandStop:
		e.current.stopped = true
		err = c.Stop()

	case engine.CommandSeekTo:
		err = c.SeekCur(time.Duration(cmd.SeekMs)*time.Millisecond, false)

	default:
		zlog.Warn().Msgf("mpd: unknown command: %d", cmd.Type)
	}

	if err != nil {
		e.fail(ctx, events, errors.Wrapf(err, "mpd %s", cmd.Type))
	}
}

// playPath replaces the MPD queue with a single file and starts it.
func (e *Engine) playPath(c conn, path string) error {
	if err := c.Clear(); err != nil {
		return err
	}
	if err := c.Add(e.uriFor(path)); err != nil {
		return err
	}
	return c.Play(0)
}

// uriFor returns the MPD URI of a local file: relative to the music
// directory when it lies below it, the absolute path otherwise.
func (e *Engine) uriFor(path string) string {
	if e.config.MusicDir == "" {
		return path
	}
	rel, err := filepath.Rel(e.config.MusicDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// poll reads the MPD status and reports position, state changes and completion.
func (e *Engine) poll(ctx context.Context, events chan<- engine.Event) {
	if e.current.path == "" {
		return
	}
	c, err := e.connect()
	if err != nil {
		zlog.Warn().Err(err).Msg("mpd: status poll skipped")
		return
	}
	status, err := c.Status()
	if err != nil {
		zlog.Warn().Err(err).Msg("mpd: status failed")
		e.drop()
		return
	}

	if msg := status["error"]; msg != "" {
		e.fail(ctx, events, errors.Newf("mpd: %s", msg))
	}

	state := status["state"]
	previous := e.current.state
	e.current.state = state

	if state == stateStop {
		if previous == statePlay && !e.current.stopped {
			zlog.Debug().Msgf("mpd: track completed: path=%s", e.current.path)
			engine.Emit(ctx, events, e.event(engine.EventTrackCompleted, nil))
			e.current.path = ""
		}
		return
	}

	elapsed, duration := parseTimes(status)
	engine.TryEmit(events, e.event(engine.EventPlaybackPosition, func(ev *engine.Event) {
		ev.PositionMs = elapsed
		ev.DurationMs = duration
	}))

	if state != previous {
		engine.Emit(ctx, events, e.event(engine.EventPlaybackState, func(ev *engine.Event) {
			ev.Playing = state == statePlay
		}))
	}
}

// event builds an event about the current file.
func (e *Engine) event(t engine.EventType, fill func(*engine.Event)) engine.Event {
	ev := engine.Event{
		Type:       t,
		Title:      e.current.title,
		ArtworkRef: e.current.artwork,
		ContentRef: e.current.path,
		Generation: e.current.generation,
	}
	if fill != nil {
		fill(&ev)
	}
	return ev
}

func (e *Engine) fail(ctx context.Context, events chan<- engine.Event, err error) {
	zlog.Warn().Err(err).Msg("mpd: engine error")
	engine.Emit(ctx, events, e.event(engine.EventPlaybackState, func(ev *engine.Event) {
		ev.Error = err.Error()
	}))
}

// connect returns a live connection, dialing again when the previous one died.
func (e *Engine) connect() (conn, error) {
	if e.client != nil {
		if err := e.client.Ping(); err == nil {
			return e.client, nil
		}
		zlog.Warn().Msg("mpd: connection lost, reconnecting")
		e.drop()
	}

	c, err := e.dial(e.config.Network, e.config.Addr, e.config.Password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MPD at %s", e.config.Addr)
	}
	zlog.Info().Msgf("mpd: connected: addr=%s", e.config.Addr)
	e.client = c
	return c, nil
}

func (e *Engine) drop() {
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
}

func (e *Engine) close() {
	e.drop()
	zlog.Info().Msg("mpd: engine stopped")
}

// parseTimes returns elapsed and duration in milliseconds.
// Older MPD versions only report "time" as "elapsed:total" in whole seconds.
func parseTimes(status gompd.Attrs) (int, int) {
	elapsed := secondsToMs(status["elapsed"])
	duration := secondsToMs(status["duration"])
	if t := status["time"]; t != "" && (elapsed == 0 || duration == 0) {
		if e, d, ok := strings.Cut(t, ":"); ok {
			if elapsed == 0 {
				elapsed = secondsToMs(e)
			}
			if duration == 0 {
				duration = secondsToMs(d)
			}
		}
	}
	return elapsed, duration
}

func secondsToMs(s string) int {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f * 1000)
}
