package playback

import "github.com/osa030/trakify/internal/domain/track"

// DefaultHistorySize is the capacity of the in-memory play history.
const DefaultHistorySize = 50

// History is a bounded FIFO of previously played items. The oldest entry is
// evicted when a push would exceed the capacity.
// Not safe for concurrent use; the coordinator guards it with its lock.
type History struct {
	entries  []track.QueueItem
	capacity int
}

// NewHistory creates a history holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		entries:  make([]track.QueueItem, 0, capacity),
		capacity: capacity,
	}
}

// Push appends an entry, evicting the oldest one when full.
func (h *History) Push(item track.QueueItem) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, item)
}

// Pop removes and returns the most recent entry.
func (h *History) Pop() (track.QueueItem, bool) {
	if len(h.entries) == 0 {
		return track.QueueItem{}, false
	}
	last := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return last, true
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []track.QueueItem {
	result := make([]track.QueueItem, len(h.entries))
	copy(result, h.entries)
	return result
}
