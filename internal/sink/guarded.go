package sink

import (
	"sync"

	"github.com/ey-asu-rnd/streamguard/internal/record"
)

// WriteGuard approves writes by size and accounts for them afterwards.
// *governor.Governor and *monitor.Disk satisfy it.
type WriteGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
	RecordWrite(n uint64)
}

// Guarded checks the WriteGuard before every write to the wrapped Sink.
type Guarded struct {
	inner Sink
	guard WriteGuard
}

var _ Sink = (*Guarded)(nil)

// NewGuarded wraps inner.
func NewGuarded(inner Sink, guard WriteGuard) *Guarded {
	return &Guarded{inner: inner, guard: guard}
}

// Write rejects the batch with the guard's error when there is not enough
// room for it, otherwise writes it and records the bytes written.
func (g *Guarded) Write(records []record.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := g.guard.CheckBeforeWrite(record.SizeHint(records)); err != nil {
		return 0, err
	}

	n, err := g.inner.Write(records)
	if n > 0 {
		g.guard.RecordWrite(uint64(n))
	}
	return n, err
}

// Flush flushes the wrapped sink.
func (g *Guarded) Flush() error { return g.inner.Flush() }

// Close closes the wrapped sink.
func (g *Guarded) Close() error { return g.inner.Close() }

// Unwrap returns the wrapped sink.
func (g *Guarded) Unwrap() Sink { return g.inner }

// =============================================================================
// Memory
// =============================================================================

// Memory keeps written records in memory.
type Memory struct {
	mu      sync.Mutex
	records []record.Record
	flushes int
	closed  bool
}

var _ Sink = (*Memory)(nil)

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

// Write appends records. It fails once the sink is closed.
func (m *Memory) Write(records []record.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, closedErr("memory")
	}
	m.records = append(m.records, records...)
	return int64(record.SizeHint(records)), nil
}

// Flush counts the call. It fails once the sink is closed.
func (m *Memory) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return closedErr("memory")
	}
	m.flushes++
	return nil
}

// Close marks the sink closed. Records stay readable.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything written.
func (m *Memory) Records() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Record(nil), m.records...)
}

// Flushes returns how many times Flush succeeded.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
