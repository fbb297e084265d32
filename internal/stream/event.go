package stream

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
)

// EventKind identifies the payload of an Event.
type EventKind int

const (
	EventData EventKind = iota
	EventProgress
	EventBatchComplete
	EventError
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventProgress:
		return "progress"
	case EventBatchComplete:
		return "batch_complete"
	case EventError:
		return "error"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is the envelope carried by typed streams. Exactly one payload field
// is meaningful, selected by Kind.
type Event[T any] struct {
	Kind     EventKind
	Data     T
	Progress Progress
	Batch    BatchInfo
	Err      *StreamError
	Summary  Summary
}

// BatchInfo describes a completed batch.
type BatchInfo struct {
	ID    uint64
	Count int
}

// DataEvent wraps a payload item.
func DataEvent[T any](v T) Event[T] {
	return Event[T]{Kind: EventData, Data: v}
}

// ProgressEvent reports generation progress.
func ProgressEvent[T any](p Progress) Event[T] {
	return Event[T]{Kind: EventProgress, Progress: p}
}

// BatchEvent reports a completed batch of count items.
func BatchEvent[T any](id uint64, count int) Event[T] {
	return Event[T]{Kind: EventBatchComplete, Batch: BatchInfo{ID: id, Count: count}}
}

// ErrorEvent carries a stream error.
func ErrorEvent[T any](err *StreamError) Event[T] {
	return Event[T]{Kind: EventError, Err: err}
}

// CompleteEvent ends the stream with its summary.
func CompleteEvent[T any](s Summary) Event[T] {
	return Event[T]{Kind: EventComplete, Summary: s}
}

// IsData reports whether e carries a payload item.
func (e Event[T]) IsData() bool { return e.Kind == EventData }

// IsError reports whether e carries an error.
func (e Event[T]) IsError() bool { return e.Kind == EventError }

// IsComplete reports whether e is the final event.
func (e Event[T]) IsComplete() bool { return e.Kind == EventComplete }

// =============================================================================
// Payloads
// =============================================================================

// Progress reports generation progress.
type Progress struct {
	ItemsGenerated uint64
	ItemsPerSecond float64
	Elapsed        time.Duration
	Phase          string

	// MemoryUsageMB is zero when unknown.
	MemoryUsageMB   uint64
	BufferFillRatio float64

	// ItemsRemaining is negative when unknown.
	ItemsRemaining int64
}

// NewProgress returns progress for phase with unknown remaining items.
func NewProgress(phase string) Progress {
	return Progress{Phase: phase, ItemsRemaining: -1}
}

// Update sets the item count and elapsed time and recomputes the rate.
func (p *Progress) Update(items uint64, elapsed time.Duration) {
	p.ItemsGenerated = items
	p.Elapsed = elapsed
	if elapsed > 0 {
		p.ItemsPerSecond = float64(items) / elapsed.Seconds()
	}
}

// ETA estimates the remaining time. It returns false when the remaining
// item count is unknown.
func (p Progress) ETA() (time.Duration, bool) {
	if p.ItemsRemaining < 0 {
		return 0, false
	}
	if p.ItemsPerSecond <= 0 {
		return 0, true
	}
	return time.Duration(float64(p.ItemsRemaining) / p.ItemsPerSecond * float64(time.Second)), true
}

// ErrorCategory classifies a StreamError.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryGeneration    ErrorCategory = "generation"
	CategoryOutput        ErrorCategory = "output"
	CategoryResource      ErrorCategory = "resource"
	CategoryValidation    ErrorCategory = "validation"
	CategoryInternal      ErrorCategory = "internal"
)

// StreamError is a non-fatal error reported in-band.
type StreamError struct {
	Message       string
	Category      ErrorCategory
	Recoverable   bool
	ItemsAffected int
}

// NewStreamError returns a recoverable error.
func NewStreamError(category ErrorCategory, format string, args ...any) *StreamError {
	return &StreamError{
		Message:     fmt.Sprintf(format, args...),
		Category:    category,
		Recoverable: true,
	}
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Summary describes a finished stream.
type Summary struct {
	TotalItems        uint64
	TotalTime         time.Duration
	AvgItemsPerSecond float64
	ErrorCount        uint64
	DroppedCount      uint64
	PeakMemoryMB      uint64
	PhasesCompleted   []string
}

// NewSummary computes the average rate from totals.
func NewSummary(total uint64, elapsed time.Duration) Summary {
	s := Summary{TotalItems: total, TotalTime: elapsed}
	if elapsed > 0 {
		s.AvgItemsPerSecond = float64(total) / elapsed.Seconds()
	}
	return s
}

// =============================================================================
// Typed endpoints
// =============================================================================

// Sender is the producing end of a typed event stream.
type Sender[T any] struct {
	ch      *Channel[Event[T]]
	handles *atomic.Int64
}

// Receiver is the consuming end of a typed event stream.
type Receiver[T any] struct {
	ch *Channel[Event[T]]
}

// NewStream creates a connected Sender and Receiver over one Channel.
func NewStream[T any](cfg config.ChannelConfig) (*Sender[T], *Receiver[T], error) {
	ch, err := NewChannel[Event[T]](cfg)
	if err != nil {
		return nil, nil, err
	}
	handles := &atomic.Int64{}
	handles.Store(1)
	return &Sender[T]{ch: ch, handles: handles}, &Receiver[T]{ch: ch}, nil
}

// Clone returns another handle to the same stream. Each handle should call
// Release when done; the stream closes when the last handle is released.
func (s *Sender[T]) Clone() *Sender[T] {
	s.handles.Add(1)
	return &Sender[T]{ch: s.ch, handles: s.handles}
}

// Release drops this handle and closes the stream if it was the last one.
func (s *Sender[T]) Release() {
	if s.handles.Add(-1) == 0 {
		s.ch.Close()
	}
}

// Send enqueues ev under the channel strategy.
func (s *Sender[T]) Send(ev Event[T]) (bool, error) { return s.ch.Send(ev) }

// SendData enqueues v as a data event.
func (s *Sender[T]) SendData(v T) (bool, error) { return s.ch.Send(DataEvent(v)) }

// SendDataContext enqueues v, abandoning a blocked send when ctx is done.
func (s *Sender[T]) SendDataContext(ctx context.Context, v T) (bool, error) {
	return s.ch.SendContext(ctx, DataEvent(v))
}

// Close closes the stream for every handle immediately.
func (s *Sender[T]) Close() { s.ch.Close() }

// Len returns the number of queued events.
func (s *Sender[T]) Len() int { return s.ch.Len() }

// FillRatio returns queued events as a fraction of capacity.
func (s *Sender[T]) FillRatio() float64 { return s.ch.FillRatio() }

// Stats returns the shared channel statistics.
func (s *Sender[T]) Stats() ChannelStats { return s.ch.Stats() }

// Recv blocks until an event arrives or the stream is closed and drained.
func (r *Receiver[T]) Recv() (Event[T], bool) { return r.ch.Recv() }

// RecvTimeout is Recv giving up after d.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (Event[T], bool) { return r.ch.RecvTimeout(d) }

// RecvContext blocks until an event arrives, the stream is closed and
// drained (false, nil) or ctx is done.
func (r *Receiver[T]) RecvContext(ctx context.Context) (Event[T], bool, error) {
	return r.ch.RecvContext(ctx)
}

// Len returns the number of queued events.
func (r *Receiver[T]) Len() int { return r.ch.Len() }

// FillRatio returns queued events as a fraction of capacity.
func (r *Receiver[T]) FillRatio() float64 { return r.ch.FillRatio() }

// TryRecv returns the next event without blocking.
func (r *Receiver[T]) TryRecv() (Event[T], bool) { return r.ch.TryRecv() }

// IsClosed reports whether the stream has been closed.
func (r *Receiver[T]) IsClosed() bool { return r.ch.IsClosed() }

// Stats returns the shared channel statistics.
func (r *Receiver[T]) Stats() ChannelStats { return r.ch.Stats() }

// All yields events until the stream is closed and drained.
func (r *Receiver[T]) All() iter.Seq[Event[T]] {
	return func(yield func(Event[T]) bool) {
		for {
			ev, ok := r.ch.Recv()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}
