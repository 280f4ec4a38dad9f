// Package playback provides the queue coordinator: queue, current selection and playback state.
package playback

import (
	"time"

	"github.com/osa030/trakify/internal/domain/track"
)

// Phase represents the playback phase.
type Phase int

const (
	PhaseIdle      Phase = iota // Nothing selected, or stopped
	PhaseResolving              // Current item has no content yet
	PhaseBuffering              // Content available, play command issued
	PhasePlaying                // Engine reports playing
	PhasePaused                 // Engine reports paused
	PhaseError                  // Engine or resolution reported an error
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseBuffering:
		return "buffering"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Loading reports whether the phase is one of the loading phases.
func (p Phase) Loading() bool {
	return p == PhaseResolving || p == PhaseBuffering
}

// RepeatMode controls what happens when navigation passes either end of the queue.
type RepeatMode string

const (
	RepeatLoop RepeatMode = "loop" // Wrap around
	RepeatStop RepeatMode = "stop" // Stop at the ends
)

// Config holds coordinator configuration.
type Config struct {
	Repeat           RepeatMode    // Wraparound behavior
	HistorySize      int           // Capacity of the in-memory history
	RestartThreshold time.Duration // Position beyond which "previous" restarts the current track
}

// DefaultConfig returns the configuration matching the classic player behavior.
func DefaultConfig() Config {
	return Config{
		Repeat:           RepeatLoop,
		HistorySize:      DefaultHistorySize,
		RestartThreshold: 5 * time.Second,
	}
}

// playbackState is what the engine last told us, plus our own loading phases.
// Guarded by Coordinator.mu.
type playbackState struct {
	phase      Phase
	title      string
	contentRef string
	artworkRef string
	positionMs int
	durationMs int
	lastErr    error
}

func (s *playbackState) reset() {
	s.phase = PhaseIdle
	s.title = ""
	s.contentRef = ""
	s.artworkRef = ""
	s.positionMs = 0
	s.durationMs = 0
	s.lastErr = nil
}

// Status is a point-in-time copy of the coordinator state for presentation.
type Status struct {
	Phase        Phase
	Title        string
	ContentRef   string
	ArtworkRef   string
	PositionMs   int
	DurationMs   int
	CurrentIndex int
	Queue        []track.QueueItem
	HistoryLen   int
	Repeat       RepeatMode
	HasNext      bool
	HasPrevious  bool
	LastError    string
}

// Current returns the selected queue item, if any.
func (s *Status) Current() (track.QueueItem, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return track.QueueItem{}, false
	}
	return s.Queue[s.CurrentIndex], true
}
