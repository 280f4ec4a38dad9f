package notification

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingSubscriber struct {
	state    atomic.Int32
	position atomic.Int32
}

func (s *countingSubscriber) OnStateChanged()    { s.state.Add(1) }
func (s *countingSubscriber) OnPositionUpdated() { s.position.Add(1) }

func TestRegistry_FanOut(t *testing.T) {
	r := NewRegistry()
	a := &countingSubscriber{}
	b := &countingSubscriber{}
	r.Subscribe(a)
	idB := r.Subscribe(b)

	r.NotifyStateChanged()
	r.NotifyPositionUpdated()
	r.NotifyPositionUpdated()

	assert.Equal(t, int32(1), a.state.Load())
	assert.Equal(t, int32(2), a.position.Load())
	assert.Equal(t, int32(1), b.state.Load())

	r.Unsubscribe(idB)
	r.NotifyStateChanged()
	assert.Equal(t, int32(2), a.state.Load())
	assert.Equal(t, int32(1), b.state.Load(), "unsubscribed subscriber must not be called")
	assert.Equal(t, 1, r.SubscriberCount())
	assert.Equal(t, uint64(4), r.SequenceNo())
}

func TestRegistry_UnsubscribeFromCallback(t *testing.T) {
	r := NewRegistry()
	var id string
	calls := 0
	id = r.Subscribe(SubscriberFuncs{
		StateChanged: func() {
			calls++
			r.Unsubscribe(id)
		},
	})

	assert.NotPanics(t, r.NotifyStateChanged)
	r.NotifyStateChanged()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.SubscriberCount())
}

func TestRegistry_PanickingSubscriberIsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(SubscriberFuncs{StateChanged: func() { panic("boom") }})
	healthy := &countingSubscriber{}
	r.Subscribe(healthy)

	assert.NotPanics(t, r.NotifyStateChanged)
	assert.Equal(t, int32(1), healthy.state.Load())
}

func TestSubscriberFuncs_NilFields(t *testing.T) {
	var f SubscriberFuncs
	assert.NotPanics(t, f.OnStateChanged)
	assert.NotPanics(t, f.OnPositionUpdated)
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	sub := &countingSubscriber{}
	r.Subscribe(sub)
	r.Close()
	r.NotifyStateChanged()
	assert.Equal(t, int32(0), sub.state.Load())
}
