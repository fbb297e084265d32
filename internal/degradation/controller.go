// Package degradation maps resource readings onto a four-step severity
// ladder and the actions a pipeline takes at each step.
package degradation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
)

// Level represents the current degradation level.
type Level int32

const (
	// LevelNormal - full operation.
	LevelNormal Level = iota

	// LevelWarning - smaller batches, optional enrichment skipped.
	LevelWarning

	// LevelCritical - essential data only, flush on every batch.
	LevelCritical

	// LevelEmergency - flush and shut down.
	LevelEmergency
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Description explains what the pipeline does at this level.
func (l Level) Description() string {
	switch l {
	case LevelNormal:
		return "full operation with all features enabled"
	case LevelWarning:
		return "reduced batch sizes, no data quality injection, half anomaly rate"
	case LevelCritical:
		return "essential data only, no injections, minimal batch sizes"
	case LevelEmergency:
		return "flush pending writes and terminate gracefully"
	default:
		return ""
	}
}

// Status carries the readings for one Update. Absent dimensions do not
// contribute to the level.
type Status struct {
	MemoryRatio float64
	HasMemory   bool

	DiskAvailableMB uint64
	HasDisk         bool

	CPULoad float64
	HasCPU  bool
}

// WithMemory returns a copy with memory usage as a fraction of the hard limit.
func (s Status) WithMemory(ratio float64) Status {
	s.MemoryRatio, s.HasMemory = ratio, true
	return s
}

// WithDisk returns a copy with free disk space in MB.
func (s Status) WithDisk(availableMB uint64) Status {
	s.DiskAvailableMB, s.HasDisk = availableMB, true
	return s
}

// WithCPU returns a copy with CPU load in [0, 1].
func (s Status) WithCPU(load float64) Status {
	s.CPULoad, s.HasCPU = load, true
	return s
}

// Controller computes the degradation level from resource readings.
//
// The most severe level triggered by any present dimension wins. CPU alone
// never reaches Emergency. Without recovery settings the level follows the
// readings in both directions on every Update.
type Controller struct {
	mu sync.Mutex

	config config.DegradationConfig
	log    *slog.Logger
	now    func() time.Time

	// Current state
	level   atomic.Int32
	entered time.Time

	// Statistics
	stats Stats

	// Level change callback
	onLevelChange func(old, new Level)
}

// Stats holds controller statistics.
type Stats struct {
	CurrentLevel   Level
	Updates        int64
	LevelChanges   int64
	WarningCount   int64
	CriticalCount  int64
	EmergencyCount int64
}

// New creates a controller at LevelNormal.
func New(cfg config.DegradationConfig) *Controller {
	return &Controller{
		config:  cfg,
		log:     logging.Component("degradation"),
		now:     time.Now,
		entered: time.Now(),
	}
}

// Disabled returns a controller that always reports LevelNormal.
func Disabled() *Controller {
	return New(config.DegradationDisabled())
}

// SetOnLevelChange sets the callback for level changes.
// The callback runs outside the controller lock.
func (c *Controller) SetOnLevelChange(fn func(old, new Level)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevelChange = fn
}

// Update evaluates status and returns the new level and whether it changed.
func (c *Controller) Update(status Status) (Level, bool) {
	if !c.config.Enabled {
		return LevelNormal, false
	}

	c.mu.Lock()
	c.stats.Updates++

	current := Level(c.level.Load())
	target := c.evaluate(status, 0)

	if target < current && c.config.Recovery.Active() {
		target = c.damp(status, current, target)
	}

	if target == current {
		c.mu.Unlock()
		return current, false
	}

	fn := c.setLevel(target)
	c.mu.Unlock()

	c.log.Info("degradation level changed",
		"from", current.String(),
		"to", target.String(),
		"memory_ratio", status.MemoryRatio,
		"disk_available_mb", status.DiskAvailableMB,
		"cpu_load", status.CPULoad)

	if fn != nil {
		fn(current, target)
	}
	return target, true
}

// evaluate returns the most severe level among present dimensions. A
// positive relax lowers the memory and CPU thresholds by relax and raises
// the disk thresholds by relax*1000 MB.
func (c *Controller) evaluate(s Status, relax float64) Level {
	t := c.config.Thresholds
	level := LevelNormal

	if s.HasMemory {
		m := s.MemoryRatio
		switch {
		case m >= t.Memory.Emergency-relax:
			level = max(level, LevelEmergency)
		case m >= t.Memory.Critical-relax:
			level = max(level, LevelCritical)
		case m >= t.Memory.Warning-relax:
			level = max(level, LevelWarning)
		}
	}

	if s.HasDisk {
		d := s.DiskAvailableMB
		slack := uint64(relax * 1000)
		switch {
		case d <= t.DiskMB.Emergency+slack:
			level = max(level, LevelEmergency)
		case d <= t.DiskMB.Critical+slack:
			level = max(level, LevelCritical)
		case d <= t.DiskMB.Warning+slack:
			level = max(level, LevelWarning)
		}
	}

	if s.HasCPU {
		load := s.CPULoad
		switch {
		case load >= t.CPU.Critical-relax:
			level = max(level, LevelCritical)
		case load >= t.CPU.Warning-relax:
			level = max(level, LevelWarning)
		}
	}

	return level
}

// damp limits a downward move from current towards target.
func (c *Controller) damp(s Status, current, target Level) Level {
	r := c.config.Recovery

	if r.MinDwell > 0 && c.now().Sub(c.entered) < r.MinDwell {
		return current
	}

	if r.Hysteresis > 0 {
		relaxed := c.evaluate(s, r.Hysteresis)
		target = max(target, min(relaxed, current))
	}

	if r.StepDown && target < current-1 {
		target = current - 1
	}

	return target
}

// setLevel updates the level and counters and returns the callback to fire.
// Caller holds c.mu.
func (c *Controller) setLevel(newLevel Level) func(old, new Level) {
	c.level.Store(int32(newLevel))
	c.entered = c.now()
	c.stats.LevelChanges++

	// Update level-specific counters
	switch newLevel {
	case LevelWarning:
		c.stats.WarningCount++
	case LevelCritical:
		c.stats.CriticalCount++
	case LevelEmergency:
		c.stats.EmergencyCount++
	}

	return c.onLevelChange
}

// CurrentLevel returns the current degradation level.
func (c *Controller) CurrentLevel() Level {
	return Level(c.level.Load())
}

// IsDegraded reports whether the level is above Normal.
func (c *Controller) IsDegraded() bool {
	return c.CurrentLevel() != LevelNormal
}

// Actions returns the actions for the current level.
func (c *Controller) Actions() Actions {
	return ActionsFor(c.CurrentLevel())
}

// ForceLevel sets the level regardless of readings. It always counts as a change.
func (c *Controller) ForceLevel(level Level) {
	c.mu.Lock()
	old := Level(c.level.Load())
	fn := c.setLevel(level)
	c.mu.Unlock()

	c.log.Warn("degradation level forced", "from", old.String(), "to", level.String())
	if fn != nil {
		fn(old, level)
	}
}

// Reset returns to LevelNormal without counting a change.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level.Store(int32(LevelNormal))
	c.entered = c.now()
}

// LevelChangeCount returns the number of level changes so far.
func (c *Controller) LevelChangeCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.LevelChanges
}

// Stats returns current statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.CurrentLevel = c.CurrentLevel()
	return s
}

// ResetStats zeroes the counters. The level is kept.
func (c *Controller) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

// IsEnabled returns whether level evaluation is enabled.
func (c *Controller) IsEnabled() bool {
	return c.config.Enabled
}

// Config returns the controller configuration.
func (c *Controller) Config() config.DegradationConfig {
	return c.config
}
