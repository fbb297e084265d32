// Package stream connects record producers to consumers through a bounded
// channel with a configurable overflow policy.
//
// Channel is built on a native Go channel, so every send wakes at most one
// waiting receiver and every receive frees room for at most one waiting
// sender. The drop strategies evict or discard explicitly instead of waiting.
//
// Close is the single end-of-stream signal: it is idempotent, wakes every
// blocked sender (which then fail with ErrChannelClosed) and lets receivers
// drain whatever is still queued before reporting the end of the stream.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// Channel is a bounded FIFO queue shared by any number of senders and receivers.
type Channel[T any] struct {
	ch       chan T
	done     chan struct{}
	once     sync.Once
	closed   atomic.Bool
	capacity int
	strategy config.ChannelStrategy

	// Statistics
	sent          atomic.Int64
	received      atomic.Int64
	dropped       atomic.Int64
	sendBlocks    atomic.Int64
	receiveBlocks atomic.Int64
	maxSize       atomic.Int64
}

// NewChannel creates a channel from cfg. Under the buffer strategy the queue
// may grow to Capacity+MaxOverflow before senders block.
func NewChannel[T any](cfg config.ChannelConfig) (*Channel[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, sgerrors.Wrap(err, "channel")
	}
	return &Channel[T]{
		ch:       make(chan T, cfg.Bound()),
		done:     make(chan struct{}),
		capacity: cfg.Capacity,
		strategy: cfg.Strategy,
	}, nil
}

// Send enqueues item. It returns false when the item was discarded by the
// drop_newest strategy and ErrChannelClosed once the channel is closed.
func (c *Channel[T]) Send(item T) (bool, error) {
	return c.SendContext(context.Background(), item)
}

// SendContext is Send with a cancellable wait for the blocking strategies.
func (c *Channel[T]) SendContext(ctx context.Context, item T) (bool, error) {
	if c.closed.Load() {
		return false, sgerrors.ErrChannelClosed
	}

	if c.trySend(item) {
		return true, nil
	}

	switch c.strategy {
	case config.ChannelDropNewest:
		c.dropped.Add(1)
		return false, nil

	case config.ChannelDropOldest:
		c.evictAndSend(item)
		return true, nil
	}

	c.sendBlocks.Add(1)
	select {
	case c.ch <- item:
		c.afterSend()
		return true, nil
	case <-c.done:
		return false, sgerrors.ErrChannelClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SendTimeout waits up to timeout for room. On expiry drop_newest discards
// the item, drop_oldest evicts the head and enqueues, and the blocking
// strategies return ErrSendTimeout.
func (c *Channel[T]) SendTimeout(item T, timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, sgerrors.ErrChannelClosed
	}

	if c.trySend(item) {
		return true, nil
	}

	c.sendBlocks.Add(1)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.ch <- item:
		c.afterSend()
		return true, nil
	case <-c.done:
		return false, sgerrors.ErrChannelClosed
	case <-timer.C:
	}

	switch c.strategy {
	case config.ChannelDropNewest:
		c.dropped.Add(1)
		return false, nil
	case config.ChannelDropOldest:
		c.evictAndSend(item)
		return true, nil
	default:
		return false, sgerrors.ErrSendTimeout
	}
}

func (c *Channel[T]) trySend(item T) bool {
	select {
	case c.ch <- item:
		c.afterSend()
		return true
	default:
		return false
	}
}

// evictAndSend discards the oldest queued items until item fits.
func (c *Channel[T]) evictAndSend(item T) {
	for !c.trySend(item) {
		select {
		case <-c.ch:
			c.dropped.Add(1)
		default:
		}
	}
}

func (c *Channel[T]) afterSend() {
	c.sent.Add(1)
	size := int64(len(c.ch))
	for {
		peak := c.maxSize.Load()
		if size <= peak || c.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// Recv blocks until an item is available. It returns false once the channel
// is closed and drained.
func (c *Channel[T]) Recv() (T, bool) {
	v, ok, _ := c.recv(context.Background(), nil)
	return v, ok
}

// RecvContext is Recv that also returns when ctx is done.
func (c *Channel[T]) RecvContext(ctx context.Context) (T, bool, error) {
	return c.recv(ctx, nil)
}

// RecvTimeout waits up to timeout for an item.
func (c *Channel[T]) RecvTimeout(timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	v, ok, _ := c.recv(context.Background(), timer.C)
	return v, ok
}

func (c *Channel[T]) recv(ctx context.Context, timeout <-chan time.Time) (T, bool, error) {
	if v, ok := c.TryRecv(); ok {
		return v, true, nil
	}

	var zero T
	if c.closed.Load() {
		return zero, false, nil
	}

	c.receiveBlocks.Add(1)
	select {
	case v := <-c.ch:
		c.received.Add(1)
		return v, true, nil
	case <-c.done:
		v, ok := c.TryRecv()
		return v, ok, nil
	case <-timeout:
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// TryRecv returns the oldest item without blocking.
func (c *Channel[T]) TryRecv() (T, bool) {
	select {
	case v := <-c.ch:
		c.received.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Close marks the channel closed and wakes every waiter. Safe to call more than once.
func (c *Channel[T]) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// Done returns a channel that is closed when Close is called.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Channel[T]) IsClosed() bool {
	return c.closed.Load()
}

// Len returns the number of queued items.
func (c *Channel[T]) Len() int {
	return len(c.ch)
}

// IsEmpty reports whether nothing is queued.
func (c *Channel[T]) IsEmpty() bool {
	return len(c.ch) == 0
}

// Capacity returns the nominal capacity.
func (c *Channel[T]) Capacity() int {
	return c.capacity
}

// Bound returns the hard limit on queued items.
func (c *Channel[T]) Bound() int {
	return cap(c.ch)
}

// FillRatio returns Len over the nominal capacity. It may exceed 1 under
// the buffer strategy.
func (c *Channel[T]) FillRatio() float64 {
	return float64(len(c.ch)) / float64(c.capacity)
}

// Strategy returns the overflow strategy.
func (c *Channel[T]) Strategy() config.ChannelStrategy {
	return c.strategy
}

// ChannelStats holds channel statistics.
type ChannelStats struct {
	ItemsSent     int64
	ItemsReceived int64
	ItemsDropped  int64
	BufferSize    int
	MaxBufferSize int
	SendBlocks    int64
	ReceiveBlocks int64
}

// Stats returns a snapshot of channel statistics.
func (c *Channel[T]) Stats() ChannelStats {
	return ChannelStats{
		ItemsSent:     c.sent.Load(),
		ItemsReceived: c.received.Load(),
		ItemsDropped:  c.dropped.Load(),
		BufferSize:    len(c.ch),
		MaxBufferSize: int(c.maxSize.Load()),
		SendBlocks:    c.sendBlocks.Load(),
		ReceiveBlocks: c.receiveBlocks.Load(),
	}
}
