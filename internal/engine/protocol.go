// Package engine defines the message protocol between the queue coordinator and a playback engine.
//
// The coordinator writes Commands and reads Events; an engine does the opposite.
// Neither side calls into the other directly.
package engine

import "context"

// CommandType represents a coordinator → engine command type.
type CommandType int

const (
	CommandPlayPath CommandType = iota // Load and play a local file
	CommandPlay                        // Resume playback
	CommandPause                       // Pause playback
	CommandStop                        // Stop playback
	CommandSeekTo                      // Seek within the current file
)

// String returns the string representation of the command type.
func (c CommandType) String() string {
	switch c {
	case CommandPlayPath:
		return "play_path"
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandStop:
		return "stop"
	case CommandSeekTo:
		return "seek_to"
	default:
		return "unknown"
	}
}

// Command is a one-way message sent to the engine.
type Command struct {
	Type       CommandType
	Path       string // PlayPath only
	Title      string // PlayPath only
	Artwork    string // PlayPath only
	SeekMs     int    // SeekTo only
	Generation uint64 // PlayPath only; echoed back on events for this file
}

// EventType represents an engine → coordinator event type.
type EventType int

const (
	EventPlaybackState     EventType = iota // Engine self-reported status
	EventPlaybackPosition                   // Periodic position report
	EventTrackCompleted                     // Current file reached its end
	EventNextRequested                      // Transport control: next
	EventPreviousRequested                  // Transport control: previous
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlaybackState:
		return "playback_state"
	case EventPlaybackPosition:
		return "playback_position"
	case EventTrackCompleted:
		return "track_completed"
	case EventNextRequested:
		return "next_requested"
	case EventPreviousRequested:
		return "previous_requested"
	default:
		return "unknown"
	}
}

// Event is a one-way message emitted by the engine.
type Event struct {
	Type EventType

	// PlaybackState
	Playing    bool
	Buffering  bool
	Title      string
	ArtworkRef string
	Error      string // Non-empty overrides Playing/Buffering

	// PlaybackPosition
	PositionMs int
	DurationMs int

	// Identity of the file the event is about. Empty means unknown.
	ContentRef string
	Generation uint64
}

// Engine runs a playback engine until ctx is done.
type Engine interface {
	Run(ctx context.Context, commands <-chan Command, events chan<- Event) error
}

// Emit delivers an event, waiting until it is accepted or ctx is done.
func Emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryEmit delivers an event without blocking. Position reports use this
// since a newer report supersedes a dropped one.
func TryEmit(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	default:
		return false
	}
}
