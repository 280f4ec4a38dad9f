// Package notification provides the subscriber registry for playback change notifications.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Subscriber receives change notifications.
// Callbacks carry no payload; subscribers read a fresh snapshot instead.
// Callbacks run on the notifying goroutine and must return promptly.
type Subscriber interface {
	OnStateChanged()
	OnPositionUpdated()
}

// SubscriberFuncs adapts plain functions to a Subscriber. Nil fields are skipped.
type SubscriberFuncs struct {
	StateChanged    func()
	PositionUpdated func()
}

// OnStateChanged implements Subscriber.
func (f SubscriberFuncs) OnStateChanged() {
	if f.StateChanged != nil {
		f.StateChanged()
	}
}

// OnPositionUpdated implements Subscriber.
func (f SubscriberFuncs) OnPositionUpdated() {
	if f.PositionUpdated != nil {
		f.PositionUpdated()
	}
}

// Registry manages subscribers and fans out notifications.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	sequenceNo  uint64
}

// NewRegistry creates a new subscriber registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

// Subscribe adds a subscriber and returns its subscription ID.
func (r *Registry) Subscribe(sub Subscriber) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.subscribers[id] = sub
	return id
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (r *Registry) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// SequenceNo returns the number of notifications sent so far.
func (r *Registry) SequenceNo() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sequenceNo
}

// NotifyStateChanged calls OnStateChanged on every subscriber.
func (r *Registry) NotifyStateChanged() {
	for _, sub := range r.snapshot() {
		r.deliver("state_changed", sub.OnStateChanged)
	}
}

// NotifyPositionUpdated calls OnPositionUpdated on every subscriber.
func (r *Registry) NotifyPositionUpdated() {
	for _, sub := range r.snapshot() {
		r.deliver("position_updated", sub.OnPositionUpdated)
	}
}

// Close removes all subscribers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = make(map[string]Subscriber)
}

// snapshot copies the subscriber set so callbacks run without the lock held.
// A subscriber may unsubscribe itself from inside its own callback.
func (r *Registry) snapshot() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequenceNo++
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// deliver isolates one subscriber's panic from the rest of the fan-out.
func (r *Registry) deliver(kind string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			zlog.Error().Msgf("notification: subscriber panicked on %s: %v", kind, rec)
		}
	}()
	fn()
}
