package testutil

import (
	"sync"

	"github.com/ey-asu-rnd/streamguard/internal/stream"
)

// Recorder collects stream events from any goroutine.
type Recorder[T any] struct {
	mu     sync.Mutex
	events []stream.Event[T]

	// OnRecord, when set, is called with each event after it is stored.
	OnRecord func(stream.Event[T])
}

// Record stores ev. It has the signature of an event callback.
func (r *Recorder[T]) Record(ev stream.Event[T]) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	if r.OnRecord != nil {
		r.OnRecord(ev)
	}
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder[T]) Events() []stream.Event[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.Event[T](nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder[T]) Count(kind stream.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder[T]) Last(kind stream.EventKind) (stream.Event[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return stream.Event[T]{}, false
}
