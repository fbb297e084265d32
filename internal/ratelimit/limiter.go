// Package ratelimit paces record emission with a token bucket.
//
// The bucket holds at most BurstSize tokens and refills continuously at Rate
// tokens per second. Each Acquire consumes one token. When the bucket is
// empty the configured strategy decides what happens:
//
//   - block:  sleep until a token accrues, then proceed (Waited)
//   - drop:   return Dropped immediately
//   - buffer: queue a marker (Buffered) up to MaxBuffered, else block
//
// Buffered markers are released in FIFO order by ProcessBuffer as tokens
// accrue. A disabled limiter proceeds without touching any state.
package ratelimit

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ey-asu-rnd/streamguard/internal/aggregate"
	"github.com/ey-asu-rnd/streamguard/internal/buffer"
	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
)

// =============================================================================
// Actions
// =============================================================================

// ActionKind is the outcome of an acquisition.
type ActionKind int

const (
	// Proceed means a token was available.
	Proceed ActionKind = iota
	// Dropped means the caller should discard the item.
	Dropped
	// Buffered means a marker was queued; see ProcessBuffer.
	Buffered
	// Waited means the caller was paced and may now proceed.
	Waited
)

func (k ActionKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Dropped:
		return "dropped"
	case Buffered:
		return "buffered"
	case Waited:
		return "waited"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is returned by every acquisition.
type Action struct {
	Kind ActionKind

	// Position is the 1-based queue position for Buffered.
	Position int

	// Wait is the pacing delay for Waited.
	Wait time.Duration
}

// Allowed reports whether the caller may emit the item now.
func (a Action) Allowed() bool {
	return a.Kind == Proceed || a.Kind == Waited
}

func (a Action) String() string {
	switch a.Kind {
	case Buffered:
		return fmt.Sprintf("buffered(position=%d)", a.Position)
	case Waited:
		return fmt.Sprintf("waited(%s)", a.Wait)
	default:
		return a.Kind.String()
	}
}

// =============================================================================
// Limiter
// =============================================================================

// Limiter is a token bucket rate limiter. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex // guards cfg.Rate
	cfg      config.RateLimitConfig
	enabled  atomic.Bool
	bucket   atomic.Pointer[rate.Limiter]
	pending  *buffer.RingBuffer[time.Time]
	clock    Clock
	logger   *slog.Logger
	waitTime *aggregate.Stream

	// Statistics
	total     atomic.Int64
	immediate atomic.Int64
	waits     atomic.Int64
	drops     atomic.Int64
	buffered  atomic.Int64
	waitNanos atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New creates a Limiter. An enabled configuration with a non-positive rate is rejected.
func New(cfg config.RateLimitConfig, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	maxBuffered := cfg.MaxBuffered
	if maxBuffered <= 0 {
		maxBuffered = 1
	}

	l := &Limiter{
		cfg:      cfg,
		pending:  buffer.New[time.Time](maxBuffered),
		clock:    realClock{},
		logger:   logging.Component("ratelimit"),
		waitTime: aggregate.New(true),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.enabled.Store(cfg.Enabled)
	l.bucket.Store(l.newBucket())

	return l, nil
}

// NewPerSecond creates a blocking limiter at n tokens per second.
func NewPerSecond(n float64, opts ...Option) (*Limiter, error) {
	return New(config.RateLimitPerSecond(n), opts...)
}

// Disabled returns a limiter that always proceeds.
func Disabled() *Limiter {
	l, _ := New(config.RateLimitDisabled())
	return l
}

func (l *Limiter) newBucket() *rate.Limiter {
	r := rate.Limit(l.cfg.Rate)
	if l.cfg.Rate <= 0 {
		// Only reachable while disabled.
		r = rate.Inf
	}
	return rate.NewLimiter(r, l.cfg.BurstSize)
}

// Acquire obtains one token, applying the configured strategy when none is
// available. An acquisition the bucket can never satisfy is reported as Dropped.
func (l *Limiter) Acquire() Action {
	a, err := l.acquire(context.Background())
	if err != nil {
		l.logger.Error("acquire failed", "error", err)
	}
	return a
}

// AcquireContext is Acquire with cancellable waiting. If ctx is done while
// paced, the reserved token is returned and ctx.Err() is reported with a
// Dropped action.
func (l *Limiter) AcquireContext(ctx context.Context) (Action, error) {
	return l.acquire(ctx)
}

func (l *Limiter) acquire(ctx context.Context) (Action, error) {
	if !l.enabled.Load() {
		return Action{Kind: Proceed}, nil
	}

	l.total.Add(1)
	bucket := l.bucket.Load()
	now := l.clock.Now()

	if bucket.AllowN(now, 1) {
		l.immediate.Add(1)
		return Action{Kind: Proceed}, nil
	}

	switch l.cfg.Strategy {
	case config.RateLimitDrop:
		l.drops.Add(1)
		return Action{Kind: Dropped}, nil

	case config.RateLimitBuffer:
		if l.pending.Push(now) {
			l.buffered.Add(1)
			return Action{Kind: Buffered, Position: l.pending.Len()}, nil
		}
		// Marker queue full, fall back to blocking.
	}

	return l.wait(ctx, bucket, now)
}

func (l *Limiter) wait(ctx context.Context, bucket *rate.Limiter, now time.Time) (Action, error) {
	r := bucket.ReserveN(now, 1)
	if !r.OK() {
		l.drops.Add(1)
		return Action{Kind: Dropped}, fmt.Errorf("rate limiter: burst %d cannot satisfy a single token", l.cfg.BurstSize)
	}

	delay := r.DelayFrom(now)
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return Action{Kind: Dropped}, err
	}

	l.recordWait(delay)
	return Action{Kind: Waited, Wait: delay}, nil
}

func (l *Limiter) recordWait(d time.Duration) {
	l.waits.Add(1)
	l.waitNanos.Add(int64(d))
	l.waitTime.Add(float64(d) / float64(time.Millisecond))
}

// TryAcquire obtains a token without blocking. It returns false when the
// bucket is empty; only successful attempts are counted.
func (l *Limiter) TryAcquire() (Action, bool) {
	if !l.enabled.Load() {
		return Action{Kind: Proceed}, true
	}

	if l.bucket.Load().AllowN(l.clock.Now(), 1) {
		l.total.Add(1)
		l.immediate.Add(1)
		return Action{Kind: Proceed}, true
	}
	return Action{}, false
}

// AcquireTimeout waits at most timeout for a token. If the required wait is
// longer, the drop strategy reports Dropped and every other strategy returns false.
func (l *Limiter) AcquireTimeout(timeout time.Duration) (Action, bool) {
	if !l.enabled.Load() {
		return Action{Kind: Proceed}, true
	}

	l.total.Add(1)
	bucket := l.bucket.Load()
	now := l.clock.Now()

	if bucket.AllowN(now, 1) {
		l.immediate.Add(1)
		return Action{Kind: Proceed}, true
	}

	r := bucket.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if !r.OK() || delay > timeout {
		r.CancelAt(now)
		if l.cfg.Strategy == config.RateLimitDrop {
			l.drops.Add(1)
			return Action{Kind: Dropped}, true
		}
		return Action{}, false
	}

	_ = l.clock.Sleep(context.Background(), delay)
	l.recordWait(delay)
	return Action{Kind: Waited, Wait: delay}, true
}

// ProcessBuffer releases queued markers while tokens are available, oldest
// first, and returns how long each released marker waited.
func (l *Limiter) ProcessBuffer() []time.Duration {
	bucket := l.bucket.Load()
	now := l.clock.Now()

	var waits []time.Duration
	for {
		enqueued, ok := l.pending.PopIf(func(time.Time) bool {
			return bucket.AllowN(now, 1)
		})
		if !ok {
			break
		}
		waits = append(waits, now.Sub(enqueued))
	}
	return waits
}

// AvailableTokens returns the current token count clamped to [0, BurstSize].
func (l *Limiter) AvailableTokens() float64 {
	tokens := l.bucket.Load().TokensAt(l.clock.Now())
	if tokens < 0 {
		return 0
	}
	if burst := float64(l.cfg.BurstSize); tokens > burst {
		return burst
	}
	return tokens
}

// BufferLen returns the number of queued markers.
func (l *Limiter) BufferLen() int {
	return l.pending.Len()
}

// SetRate changes the refill rate. Non-positive rates are rejected.
func (l *Limiter) SetRate(perSecond float64) error {
	if perSecond <= 0 {
		return fmt.Errorf("rate limiter: rate %v must be positive", perSecond)
	}
	l.mu.Lock()
	l.cfg.Rate = perSecond
	l.bucket.Load().SetLimitAt(l.clock.Now(), rate.Limit(perSecond))
	l.mu.Unlock()

	l.logger.Info("rate changed", "rate", perSecond)
	return nil
}

// SetEnabled toggles pacing. Enabling validates the configuration the same
// way New does for an enabled limiter, so a limiter built disabled with a
// zero rate or burst cannot start pacing with it.
func (l *Limiter) SetEnabled(enabled bool) error {
	if enabled {
		cfg := l.Config()
		cfg.Enabled = true
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	l.enabled.Store(enabled)
	return nil
}

// Enabled reports whether pacing is on.
func (l *Limiter) Enabled() bool {
	return l.enabled.Load()
}

// Rate returns the current refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return float64(l.bucket.Load().Limit())
}

// Config returns the limiter's configuration, including any rate set by
// SetRate. Enabled reflects construction; see Enabled for the current state.
func (l *Limiter) Config() config.RateLimitConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Reset refills the bucket, clears the marker queue and zeroes statistics.
func (l *Limiter) Reset() {
	r := l.bucket.Load().Limit()
	b := rate.NewLimiter(r, l.cfg.BurstSize)
	l.bucket.Store(b)
	l.pending.Clear()

	l.total.Store(0)
	l.immediate.Store(0)
	l.waits.Store(0)
	l.drops.Store(0)
	l.buffered.Store(0)
	l.waitNanos.Store(0)
	l.waitTime.Reset()
}

// Stats holds limiter statistics.
type Stats struct {
	TotalAcquisitions int64
	ImmediateProceeds int64
	Waits             int64
	Drops             int64
	Buffered          int64
	TotalWait         time.Duration
	CurrentTokens     float64
	BufferSize        int
	WaitP50           time.Duration
	WaitP99           time.Duration
}

// Stats returns a snapshot of limiter statistics.
func (l *Limiter) Stats() Stats {
	return Stats{
		TotalAcquisitions: l.total.Load(),
		ImmediateProceeds: l.immediate.Load(),
		Waits:             l.waits.Load(),
		Drops:             l.drops.Load(),
		Buffered:          l.buffered.Load(),
		TotalWait:         time.Duration(l.waitNanos.Load()),
		CurrentTokens:     l.AvailableTokens(),
		BufferSize:        l.pending.Len(),
		WaitP50:           msToDuration(l.waitTime.Quantile(0.50)),
		WaitP99:           msToDuration(l.waitTime.Quantile(0.99)),
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// =============================================================================
// Iteration
// =============================================================================

// Limited paces iteration over seq through l. Items whose acquisition is
// dropped are skipped; buffered items are yielded once ProcessBuffer
// releases their marker.
func Limited[T any](seq iter.Seq[T], l *Limiter) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range seq {
			a := l.Acquire()
			switch a.Kind {
			case Dropped:
				continue
			case Buffered:
				for len(l.ProcessBuffer()) == 0 {
					_ = l.clock.Sleep(context.Background(), l.tokenInterval())
				}
			}
			if !yield(v) {
				return
			}
		}
	}
}

func (l *Limiter) tokenInterval() time.Duration {
	r := l.Rate()
	if r <= 0 || r == float64(rate.Inf) {
		return time.Millisecond
	}
	return time.Duration(float64(time.Second) / r)
}
