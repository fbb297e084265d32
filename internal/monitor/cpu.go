package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/aggregate"
	"github.com/ey-asu-rnd/streamguard/internal/buffer"
	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

// CPU tracks system-wide CPU load and throttles callers while it is critical.
//
// Load is 1 - idle/total over the CPU-time delta between two samples. The
// first sample has no baseline and reads as zero. Throttling starts when a
// sample reaches the critical threshold and stops once a sample falls below
// the high threshold.
type CPU struct {
	cfg   config.CPUConfig
	probe platform.Probe
	log   *slog.Logger
	now   func() time.Time

	mu         sync.Mutex
	lastSample time.Time
	lastTimes  platform.CPUTimes
	haveTimes  bool

	window *buffer.RingBuffer[float64]
	loads  *aggregate.Stream

	current    atomic.Uint64 // float64 bits
	peak       atomic.Uint64 // float64 bits
	samples    atomic.Uint64
	throttling atomic.Bool
	throttles  atomic.Uint64
}

// CPUStats is a snapshot of the CPU monitor.
type CPUStats struct {
	CurrentLoad      float64
	AverageLoad      float64
	PeakLoad         float64
	P95Load          float64
	SamplesCollected uint64
	IsThrottling     bool
	ThrottleCount    uint64
}

// NewCPU creates a CPU monitor. A nil probe selects platform.Default().
func NewCPU(cfg config.CPUConfig, probe platform.Probe) *CPU {
	if probe == nil {
		probe = platform.Default()
	}
	size := cfg.WindowSize
	if size <= 0 {
		size = 1
	}
	return &CPU{
		cfg:    cfg,
		probe:  probe,
		log:    logging.Component("cpu"),
		now:    time.Now,
		window: buffer.New[float64](size),
		loads:  aggregate.New(true),
	}
}

// Enabled reports whether the monitor samples.
func (c *CPU) Enabled() bool {
	return c.cfg.Enabled
}

// Config returns the monitor configuration.
func (c *CPU) Config() config.CPUConfig {
	return c.cfg
}

// Sample takes a reading unless one was taken less than SampleInterval ago,
// in which case the previous load is returned. The second result is false
// when the monitor is disabled or the platform cannot report CPU times.
func (c *CPU) Sample() (float64, bool) {
	if !c.cfg.Enabled {
		return 0, false
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastSample.IsZero() && now.Sub(c.lastSample) < c.cfg.SampleInterval {
		c.mu.Unlock()
		return c.CurrentLoad(), true
	}
	c.lastSample = now

	times, err := c.probe.CPUTimes()
	if err != nil {
		c.mu.Unlock()
		c.log.Debug("cpu times unavailable", "error", err)
		return 0, false
	}

	load := 0.0
	if c.haveTimes {
		idle := times.Idle - c.lastTimes.Idle
		total := times.Total - c.lastTimes.Total
		if total > 0 {
			load = clamp01(1 - idle/total)
		}
	}
	c.lastTimes = times
	c.haveTimes = true
	c.mu.Unlock()

	c.record(load)
	return load, true
}

func (c *CPU) record(load float64) {
	c.current.Store(math.Float64bits(load))
	for {
		old := c.peak.Load()
		if load <= math.Float64frombits(old) || c.peak.CompareAndSwap(old, math.Float64bits(load)) {
			break
		}
	}

	c.window.PushOverwrite(load)
	c.loads.Add(load)
	c.samples.Add(1)

	switch {
	case load >= c.cfg.CriticalThreshold:
		if c.cfg.AutoThrottle && c.throttling.CompareAndSwap(false, true) {
			n := c.throttles.Add(1)
			c.log.Warn("cpu load critical, throttling",
				"load", load,
				"threshold", c.cfg.CriticalThreshold,
				"throttle_count", n)
		}
	case load < c.cfg.HighThreshold:
		if c.throttling.CompareAndSwap(true, false) {
			c.log.Info("cpu load recovered, throttling stopped", "load", load)
		}
	}
}

// Check samples and fails at or above the critical threshold. Sampling is
// rate limited by SampleInterval rather than a call count.
func (c *CPU) Check() error {
	return c.CheckNow()
}

// CheckNow samples and returns a *CPUOverloadError when the load is at or
// above the critical threshold.
func (c *CPU) CheckNow() error {
	if !c.cfg.Enabled {
		return nil
	}
	load, _ := c.Sample()
	if load >= c.cfg.CriticalThreshold {
		return &sgerrors.CPUOverloadError{
			Load:       load,
			Threshold:  c.cfg.CriticalThreshold,
			IsCritical: true,
			Message: fmt.Sprintf("critical CPU load: %.1f%% exceeds critical threshold of %.1f%%; "+
				"reduce parallel workers or enable throttling", load*100, c.cfg.CriticalThreshold*100),
		}
	}
	return nil
}

// MaybeThrottle sleeps for ThrottleDelay while throttling is active.
func (c *CPU) MaybeThrottle() {
	_ = c.MaybeThrottleContext(context.Background())
}

// MaybeThrottleContext is MaybeThrottle with cancellation.
func (c *CPU) MaybeThrottleContext(ctx context.Context) error {
	if !c.cfg.AutoThrottle || !c.throttling.Load() || c.cfg.ThrottleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.ThrottleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentLoad returns the most recent sample.
func (c *CPU) CurrentLoad() float64 {
	return math.Float64frombits(c.current.Load())
}

// IsThrottling reports whether MaybeThrottle currently sleeps.
func (c *CPU) IsThrottling() bool {
	return c.throttling.Load()
}

// IsAvailable reports whether the platform can measure CPU times.
func (c *CPU) IsAvailable() bool {
	return c.probe.Capabilities().CPU
}

// Stats returns a snapshot. AverageLoad covers the sample window; P95Load
// covers every sample since the last reset.
func (c *CPU) Stats() CPUStats {
	avg := 0.0
	if window := c.window.Snapshot(); len(window) > 0 {
		sum := 0.0
		for _, v := range window {
			sum += v
		}
		avg = sum / float64(len(window))
	}

	return CPUStats{
		CurrentLoad:      c.CurrentLoad(),
		AverageLoad:      avg,
		PeakLoad:         math.Float64frombits(c.peak.Load()),
		P95Load:          c.loads.Quantile(0.95),
		SamplesCollected: c.samples.Load(),
		IsThrottling:     c.throttling.Load(),
		ThrottleCount:    c.throttles.Load(),
	}
}

// ResetStats clears the window, counters and throttle state. The CPU-time
// baseline is kept so the next sample still measures a delta.
func (c *CPU) ResetStats() {
	c.current.Store(0)
	c.peak.Store(0)
	c.samples.Store(0)
	c.throttling.Store(false)
	c.throttles.Store(0)
	c.window.Clear()
	c.loads.Reset()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
