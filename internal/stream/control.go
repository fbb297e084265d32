package stream

import (
	"context"
	"sync"
	"sync/atomic"

	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// Control lets an operator pause, resume or cancel a running stream.
// Producers poll IsCancelled and call WaitWhilePaused between items.
type Control struct {
	cancelled atomic.Bool
	paused    atomic.Bool

	mu       sync.Mutex
	resumed  chan struct{}
	cancelCh chan struct{}
	once     sync.Once
}

// NewControl returns a running, uncancelled Control.
func NewControl() *Control {
	resumed := make(chan struct{})
	close(resumed)
	return &Control{
		resumed:  resumed,
		cancelCh: make(chan struct{}),
	}
}

// Cancel requests cancellation. It also releases paused waiters.
func (c *Control) Cancel() {
	c.once.Do(func() {
		c.cancelled.Store(true)
		close(c.cancelCh)
	})
}

// Pause makes WaitWhilePaused block until Resume or Cancel.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused.Swap(true) {
		return
	}
	c.resumed = make(chan struct{})
}

// Resume releases paused producers.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused.Swap(false) {
		return
	}
	close(c.resumed)
}

// IsCancelled reports whether Cancel was called.
func (c *Control) IsCancelled() bool { return c.cancelled.Load() }

// IsPaused reports whether the stream is paused.
func (c *Control) IsPaused() bool { return c.paused.Load() }

// WaitWhilePaused returns nil once the stream is running, ErrAborted if it
// was cancelled, or ctx.Err().
func (c *Control) WaitWhilePaused(ctx context.Context) error {
	if c.cancelled.Load() {
		return sgerrors.ErrAborted
	}

	c.mu.Lock()
	resumed := c.resumed
	c.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-c.cancelCh:
		return sgerrors.ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}
}
