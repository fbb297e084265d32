// Package buffer provides a fixed-capacity FIFO shared by the rate limiter's
// pending queue and the CPU monitor's sample window.
package buffer

import "sync"

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// RingBuffer is a mutex-guarded circular FIFO of fixed capacity.
type RingBuffer[T any] struct {
	mu      sync.RWMutex
	data    []T
	start   int // index of the oldest element
	n       int
	dropped int64
}

// New creates a RingBuffer holding at most capacity elements.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{data: make([]T, capacity)}
}

// Push appends v. It returns false, leaving the buffer unchanged, when full.
func (rb *RingBuffer[T]) Push(v T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n == len(rb.data) {
		rb.dropped++
		return false
	}
	rb.data[rb.slot(rb.n)] = v
	rb.n++
	return true
}

// PushOverwrite appends v, evicting the oldest element when full.
// It reports whether an element was evicted.
func (rb *RingBuffer[T]) PushOverwrite(v T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n < len(rb.data) {
		rb.data[rb.slot(rb.n)] = v
		rb.n++
		return false
	}
	rb.data[rb.start] = v
	rb.start = rb.slot(1)
	rb.dropped++
	return true
}

// Pop removes and returns the oldest element.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	return rb.PopIf(func(T) bool { return true })
}

// PopIf removes and returns the oldest element if keep reports true for it.
// keep runs under the buffer lock and must not call back into the buffer.
func (rb *RingBuffer[T]) PopIf(keep func(T) bool) (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.n == 0 || !keep(rb.data[rb.start]) {
		return zero, false
	}
	v := rb.data[rb.start]
	rb.data[rb.start] = zero
	rb.start = rb.slot(1)
	rb.n--
	return v, true
}

// Snapshot returns a copy of the contents, oldest first.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, rb.n)
	for i := range out {
		out[i] = rb.data[rb.slot(i)]
	}
	return out
}

// Len returns the number of queued elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

// Cap returns the fixed capacity.
func (rb *RingBuffer[T]) Cap() int { return len(rb.data) }

// Dropped counts elements rejected by Push or evicted by PushOverwrite.
func (rb *RingBuffer[T]) Dropped() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}

// Clear removes every element. The drop counter is kept.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.data)
	rb.start = 0
	rb.n = 0
}

// slot maps the i-th element from the oldest to its index in data.
func (rb *RingBuffer[T]) slot(i int) int {
	return (rb.start + i) % len(rb.data)
}
