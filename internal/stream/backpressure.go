package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
)

// PressureState is the producer-side view of channel fill.
type PressureState int

const (
	// PressureNormal - fill at or below the low watermark.
	PressureNormal PressureState = iota

	// PressureSlowingDown - fill at or above the high watermark.
	PressureSlowingDown

	// PressureBlocked - channel full.
	PressureBlocked

	// PressureRecovering - fill between watermarks after slowing down.
	PressureRecovering
)

func (s PressureState) String() string {
	switch s {
	case PressureNormal:
		return "normal"
	case PressureSlowingDown:
		return "slowing_down"
	case PressureBlocked:
		return "blocked"
	case PressureRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// =============================================================================
// Monitor
// =============================================================================

// Default watermarks as fractions of capacity.
const (
	DefaultHighWatermark = 0.8
	DefaultLowWatermark  = 0.5
)

// Monitor tracks how full a channel is against high and low watermarks.
type Monitor struct {
	strategy config.ChannelStrategy
	capacity int
	high     float64
	low      float64

	fill         atomic.Int64
	dropped      atomic.Int64
	blockedNanos atomic.Int64
	events       atomic.Int64
}

// NewMonitor creates a Monitor with the default watermarks.
func NewMonitor(strategy config.ChannelStrategy, capacity int) *Monitor {
	if capacity <= 0 {
		capacity = 1
	}
	return &Monitor{
		strategy: strategy,
		capacity: capacity,
		high:     DefaultHighWatermark,
		low:      DefaultLowWatermark,
	}
}

// WithWatermarks sets the watermarks, clamping high to [0,1] and low to [0,high].
func (m *Monitor) WithWatermarks(high, low float64) *Monitor {
	m.high = clamp(high, 0, 1)
	m.low = clamp(low, 0, m.high)
	return m
}

// UpdateFill records the current queue length.
func (m *Monitor) UpdateFill(n int) { m.fill.Store(int64(n)) }

// FillRatio returns the last recorded fill as a fraction of capacity.
func (m *Monitor) FillRatio() float64 {
	return float64(m.fill.Load()) / float64(m.capacity)
}

// ShouldApplyBackpressure reports fill at or above the high watermark.
func (m *Monitor) ShouldApplyBackpressure() bool {
	return m.FillRatio() >= m.high
}

// HasRecovered reports fill at or below the low watermark.
func (m *Monitor) HasRecovered() bool {
	return m.FillRatio() <= m.low
}

// RecordBackpressure counts one backpressure event.
func (m *Monitor) RecordBackpressure() { m.events.Add(1) }

// RecordDropped counts n dropped items.
func (m *Monitor) RecordDropped(n int64) { m.dropped.Add(n) }

// RecordBlocked adds d to the total time producers spent blocked.
func (m *Monitor) RecordBlocked(d time.Duration) { m.blockedNanos.Add(int64(d)) }

// Strategy returns the channel strategy being monitored.
func (m *Monitor) Strategy() config.ChannelStrategy { return m.strategy }

// MonitorStats holds monitor statistics.
type MonitorStats struct {
	Strategy           config.ChannelStrategy
	FillRatio          float64
	ItemsDropped       int64
	BlockedTime        time.Duration
	BackpressureEvents int64
	UnderPressure      bool
}

// Stats returns a snapshot.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Strategy:           m.strategy,
		FillRatio:          m.FillRatio(),
		ItemsDropped:       m.dropped.Load(),
		BlockedTime:        time.Duration(m.blockedNanos.Load()),
		BackpressureEvents: m.events.Load(),
		UnderPressure:      m.ShouldApplyBackpressure(),
	}
}

// =============================================================================
// Adaptive pacing
// =============================================================================

// Adaptive is a proportional controller that steers the inter-item delay
// so channel fill tracks a target ratio.
type Adaptive struct {
	target   float64
	minDelay time.Duration
	maxDelay time.Duration
	interval time.Duration
	current  atomic.Int64

	mu         sync.Mutex
	lastAdjust time.Time
	now        func() time.Time
}

// NewAdaptive targets 70% fill with delays in [0, 10ms], adjusting at most every 100ms.
func NewAdaptive() *Adaptive {
	return newAdaptive(time.Now)
}

func newAdaptive(now func() time.Time) *Adaptive {
	return &Adaptive{
		target:     0.7,
		maxDelay:   10 * time.Millisecond,
		interval:   100 * time.Millisecond,
		lastAdjust: now(),
		now:        now,
	}
}

// WithTargetFill sets the target, clamped to [0.1, 0.9].
func (a *Adaptive) WithTargetFill(target float64) *Adaptive {
	a.target = clamp(target, 0.1, 0.9)
	return a
}

// WithDelayBounds sets the delay range.
func (a *Adaptive) WithDelayBounds(lo, hi time.Duration) *Adaptive {
	a.minDelay = lo
	a.maxDelay = hi
	return a
}

// Adjust updates the delay from the observed fill ratio. Calls closer than
// the adjustment interval are ignored.
func (a *Adaptive) Adjust(fill float64) {
	a.mu.Lock()
	now := a.now()
	if now.Sub(a.lastAdjust) < a.interval {
		a.mu.Unlock()
		return
	}
	a.lastAdjust = now
	a.mu.Unlock()

	current := float64(a.current.Load())
	errv := fill - a.target

	var next float64
	if current == 0 && errv > 0 {
		step := float64(a.maxDelay / 10)
		if step < float64(time.Microsecond) {
			step = float64(time.Microsecond)
		}
		next = step * errv * 2
	} else {
		next = current * (1 + errv*0.5)
	}

	a.current.Store(int64(clamp(next, float64(a.minDelay), float64(a.maxDelay))))
}

// CurrentDelay returns the delay last computed by Adjust.
func (a *Adaptive) CurrentDelay() time.Duration {
	return time.Duration(a.current.Load())
}

// Reset returns the delay to its minimum.
func (a *Adaptive) Reset() {
	a.current.Store(int64(a.minDelay))
}

// =============================================================================
// Producer
// =============================================================================

// AwareProducer combines a Monitor and optional Adaptive controller into a
// pressure state and a recommended pause between items. Safe for concurrent use.
type AwareProducer struct {
	monitor  *Monitor
	adaptive *Adaptive

	mu    sync.Mutex
	state PressureState
}

// NewAwareProducer creates a producer view over a channel of the given capacity.
func NewAwareProducer(strategy config.ChannelStrategy, capacity int) *AwareProducer {
	return &AwareProducer{monitor: NewMonitor(strategy, capacity)}
}

// WithAdaptive enables adaptive delay control.
func (p *AwareProducer) WithAdaptive(a *Adaptive) *AwareProducer {
	p.adaptive = a
	return p
}

// Update records the current fill level and returns the new state.
func (p *AwareProducer) Update(fill int) PressureState {
	p.monitor.UpdateFill(fill)
	ratio := p.monitor.FillRatio()

	if p.adaptive != nil {
		p.adaptive.Adjust(ratio)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case ratio >= 1:
		p.state = PressureBlocked
	case p.monitor.ShouldApplyBackpressure():
		if p.state == PressureNormal {
			p.monitor.RecordBackpressure()
		}
		p.state = PressureSlowingDown
	case p.monitor.HasRecovered():
		p.state = PressureNormal
	case p.state == PressureSlowingDown:
		p.state = PressureRecovering
	}
	return p.state
}

// State returns the producer's current pressure state.
func (p *AwareProducer) State() PressureState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RecommendedDelay returns how long the producer should pause before the next item.
func (p *AwareProducer) RecommendedDelay() time.Duration {
	switch p.State() {
	case PressureSlowingDown, PressureRecovering:
		if p.adaptive != nil {
			return p.adaptive.CurrentDelay()
		}
		return 100 * time.Microsecond
	case PressureBlocked:
		return time.Millisecond
	default:
		return 0
	}
}

// RecordDropped counts n dropped items on the shared monitor.
func (p *AwareProducer) RecordDropped(n int64) { p.monitor.RecordDropped(n) }

// Monitor returns the shared monitor.
func (p *AwareProducer) Monitor() *Monitor { return p.monitor }

// Stats returns the shared monitor statistics.
func (p *AwareProducer) Stats() MonitorStats { return p.monitor.Stats() }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
