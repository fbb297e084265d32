package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

// Memory guards the resident set size of this process.
type Memory struct {
	cfg   config.MemoryConfig
	probe platform.Probe
	log   *slog.Logger
	now   func() time.Time

	ops            atomic.Uint64
	peakMB         atomic.Uint64
	softWarnings   atomic.Uint64
	growthWarnings atomic.Uint64
	hardExceeded   atomic.Bool

	// growth rate bookkeeping
	mu         sync.Mutex
	lastTime   time.Time
	lastMB     uint64
	growthRate float64
}

// MemoryStats is a snapshot of the memory monitor.
type MemoryStats struct {
	ResidentBytes      uint64
	SystemBytes        uint64 // zero when unreadable
	PeakResidentBytes  uint64
	ChecksPerformed    uint64
	SoftLimitWarnings  uint64
	GrowthWarnings     uint64
	GrowthRateMBPerSec float64
	HardLimitExceeded  bool
}

// NewMemory creates a memory monitor. A nil probe selects platform.Default().
func NewMemory(cfg config.MemoryConfig, probe platform.Probe) *Memory {
	if probe == nil {
		probe = platform.Default()
	}
	m := &Memory{
		cfg:   cfg,
		probe: probe,
		log:   logging.Component("memory"),
		now:   time.Now,
	}
	if m.HardLimitAboveSystem() {
		total, _ := m.SystemMemoryMB()
		m.log.Warn("memory hard limit exceeds physical memory",
			"limit_mb", cfg.HardLimitMB,
			"system_mb", total)
	}
	return m
}

// Enabled reports whether the monitor performs checks.
func (m *Memory) Enabled() bool {
	return m.cfg.Enabled && m.cfg.HardLimitMB > 0
}

// Config returns the monitor configuration.
func (m *Memory) Config() config.MemoryConfig {
	return m.cfg
}

// Check counts the call and runs CheckNow on every effective-interval-th call.
// Aggressive mode divides the interval by five.
func (m *Memory) Check() error {
	if !m.Enabled() {
		return nil
	}
	count := m.ops.Add(1) - 1
	if count%interval(m.cfg.EffectiveInterval()) != 0 {
		return nil
	}
	return m.CheckNow()
}

// CheckNow reads resident memory, updates the peak and growth rate, and
// returns a *MemoryExhaustedError when usage exceeds the hard limit.
func (m *Memory) CheckNow() error {
	if !m.Enabled() {
		return nil
	}

	current := m.CurrentUsageMB()
	m.updatePeak(current)
	m.observeGrowth(current)

	if current > m.cfg.HardLimitMB {
		m.hardExceeded.Store(true)
		m.log.Error("memory hard limit breached",
			"current_mb", current,
			"limit_mb", m.cfg.HardLimitMB)
		return sgerrors.NewMemoryExhausted(current, m.cfg.HardLimitMB)
	}

	if m.cfg.SoftLimitMB > 0 && current > m.cfg.SoftLimitMB {
		n := m.softWarnings.Add(1)
		m.log.Warn("memory above soft limit",
			"current_mb", current,
			"soft_limit_mb", m.cfg.SoftLimitMB,
			"warnings", n)
	}

	return nil
}

// CurrentUsageMB returns resident memory in MB. Zero when unreadable.
func (m *Memory) CurrentUsageMB() uint64 {
	rss, err := m.probe.ResidentMemory()
	if err != nil {
		return 0
	}
	return rss / bytesPerMB
}

// UsageRatio returns current usage as a fraction of the hard limit.
// The second result is false when the monitor is disabled or the platform
// cannot report memory.
func (m *Memory) UsageRatio() (float64, bool) {
	if !m.Enabled() {
		return 0, false
	}
	rss, err := m.probe.ResidentMemory()
	if err != nil {
		return 0, false
	}
	return float64(rss/bytesPerMB) / float64(m.cfg.HardLimitMB), true
}

// SystemMemoryMB returns the machine's physical memory in MB. The second
// result is false when the platform cannot report it.
func (m *Memory) SystemMemoryMB() (uint64, bool) {
	total, err := m.probe.TotalMemory()
	if err != nil || total == 0 {
		return 0, false
	}
	return total / bytesPerMB, true
}

// HardLimitAboveSystem reports whether an enabled monitor's hard limit can
// never be reached because the machine has less physical memory.
func (m *Memory) HardLimitAboveSystem() bool {
	if !m.Enabled() {
		return false
	}
	total, ok := m.SystemMemoryMB()
	return ok && m.cfg.HardLimitMB > total
}

// PeakUsageMB returns the highest usage seen by CheckNow.
func (m *Memory) PeakUsageMB() uint64 {
	return m.peakMB.Load()
}

// IsAvailable reports whether the platform can measure resident memory.
func (m *Memory) IsAvailable() bool {
	return m.probe.Capabilities().Memory
}

// Stats returns a snapshot.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	rate := m.growthRate
	m.mu.Unlock()

	system, _ := m.SystemMemoryMB()
	return MemoryStats{
		ResidentBytes:      m.CurrentUsageMB() * bytesPerMB,
		SystemBytes:        system * bytesPerMB,
		PeakResidentBytes:  m.peakMB.Load() * bytesPerMB,
		ChecksPerformed:    m.ops.Load(),
		SoftLimitWarnings:  m.softWarnings.Load(),
		GrowthWarnings:     m.growthWarnings.Load(),
		GrowthRateMBPerSec: rate,
		HardLimitExceeded:  m.hardExceeded.Load(),
	}
}

// ResetStats zeroes the counters and flags. The peak survives.
func (m *Memory) ResetStats() {
	m.ops.Store(0)
	m.softWarnings.Store(0)
	m.growthWarnings.Store(0)
	m.hardExceeded.Store(false)
}

func (m *Memory) updatePeak(current uint64) {
	for {
		peak := m.peakMB.Load()
		if current <= peak || m.peakMB.CompareAndSwap(peak, current) {
			return
		}
	}
}

func (m *Memory) observeGrowth(current uint64) {
	now := m.now()

	m.mu.Lock()
	lastTime, lastMB := m.lastTime, m.lastMB
	m.lastTime, m.lastMB = now, current
	if lastTime.IsZero() || !now.After(lastTime) {
		m.mu.Unlock()
		return
	}
	elapsed := now.Sub(lastTime).Seconds()
	rate := 0.0
	if current > lastMB {
		rate = float64(current-lastMB) / elapsed
	}
	m.growthRate = rate
	m.mu.Unlock()

	if m.cfg.MaxGrowthRateMBPerSec > 0 && rate > m.cfg.MaxGrowthRateMBPerSec {
		m.growthWarnings.Add(1)
		m.log.Warn("memory growing quickly",
			"rate_mb_per_sec", rate,
			"threshold_mb_per_sec", m.cfg.MaxGrowthRateMBPerSec,
			"current_mb", current)
	}
}
