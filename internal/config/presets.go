package config

import (
	"fmt"
	"math"
	"time"

	defaults "github.com/ey-asu-rnd/streamguard/config"
)

// =============================================================================
// Rate limit
// =============================================================================

// DefaultRateLimit returns an enabled limiter at 1000 tokens/s with a burst of 100.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     true,
		Rate:        defaults.DefaultRate,
		BurstSize:   defaults.DefaultBurstSize,
		Strategy:    RateLimitBlock,
		MaxBuffered: defaults.DefaultMaxBuffered,
	}
}

// RateLimitPerSecond returns a blocking limiter at n tokens per second.
func RateLimitPerSecond(n float64) RateLimitConfig {
	c := DefaultRateLimit()
	c.Rate = n
	return c
}

// RateLimitPerMinute returns a blocking limiter at n tokens per minute.
// The burst shrinks with the rate so slow limiters do not start with a large allowance.
func RateLimitPerMinute(n float64) RateLimitConfig {
	c := DefaultRateLimit()
	c.Rate = n / 60
	burst := int(math.Ceil(c.Rate))
	if burst < 1 {
		burst = 1
	}
	if burst < c.BurstSize {
		c.BurstSize = burst
	}
	return c
}

// RateLimitDisabled returns a limiter that never paces.
func RateLimitDisabled() RateLimitConfig {
	c := DefaultRateLimit()
	c.Enabled = false
	return c
}

// =============================================================================
// Guards
// =============================================================================

// DefaultDisk returns the default disk monitor configuration: enabled,
// hard 100 MB, soft 500 MB, reserve 50 MB, checked every 500 calls.
func DefaultDisk() DiskConfig {
	return DiskConfig{
		Enabled:       true,
		HardLimitMB:   defaults.DefaultDiskHardLimitMB,
		SoftLimitMB:   defaults.DefaultDiskSoftLimitMB,
		ReserveMB:     defaults.DefaultDiskReserveMB,
		CheckInterval: defaults.DefaultCheckInterval,
		Path:          defaults.DefaultDiskPath,
	}
}

// DiskWithMinFreeMB returns an enabled disk config with the given hard limit
// and a soft limit five times larger.
func DiskWithMinFreeMB(mb uint64) DiskConfig {
	c := DefaultDisk()
	c.HardLimitMB = mb
	c.SoftLimitMB = mb * 5
	return c
}

// DiskDisabled returns a disk config that never checks.
func DiskDisabled() DiskConfig {
	c := DefaultDisk()
	c.Enabled = false
	return c
}

// WithPath returns a copy monitoring the filesystem containing path.
func (c DiskConfig) WithPath(path string) DiskConfig {
	c.Path = path
	return c
}

// WithReserve returns a copy with the given reserve.
func (c DiskConfig) WithReserve(mb uint64) DiskConfig {
	c.ReserveMB = mb
	return c
}

// DefaultMemory returns a disabled memory monitor configuration.
func DefaultMemory() MemoryConfig {
	return MemoryConfig{
		Enabled:               false,
		CheckInterval:         defaults.DefaultCheckInterval,
		MaxGrowthRateMBPerSec: defaults.DefaultMaxGrowthRateMBPerSec,
	}
}

// MemoryWithLimitMB returns an enabled memory config with the soft limit at
// 80% of the hard limit.
func MemoryWithLimitMB(mb uint64) MemoryConfig {
	c := DefaultMemory()
	c.Enabled = true
	c.HardLimitMB = mb
	c.SoftLimitMB = mb * defaults.DefaultMemorySoftLimitPercent / 100
	return c
}

// WithAggressive returns a copy that checks five times as often.
func (c MemoryConfig) WithAggressive() MemoryConfig {
	c.Aggressive = true
	return c
}

// DefaultCPU returns a disabled CPU monitor configuration.
func DefaultCPU() CPUConfig {
	return CPUConfig{
		Enabled:           false,
		HighThreshold:     defaults.DefaultCPUHighThreshold,
		CriticalThreshold: defaults.DefaultCPUCriticalThreshold,
		SampleInterval:    defaults.DefaultCPUSampleInterval,
		WindowSize:        defaults.DefaultCPUWindowSize,
		AutoThrottle:      true,
		ThrottleDelay:     defaults.DefaultThrottleDelay,
	}
}

// CPUConservative throttles earlier and longer.
func CPUConservative() CPUConfig {
	c := DefaultCPU()
	c.Enabled = true
	c.HighThreshold = 0.70
	c.CriticalThreshold = 0.85
	c.ThrottleDelay = 100 * time.Millisecond
	return c
}

// CPUAggressive tolerates near-saturated CPU before throttling.
func CPUAggressive() CPUConfig {
	c := DefaultCPU()
	c.Enabled = true
	c.HighThreshold = 0.95
	c.CriticalThreshold = 0.99
	c.ThrottleDelay = 10 * time.Millisecond
	return c
}

// =============================================================================
// Degradation
// =============================================================================

// Preset names accepted by DegradationConfig.Preset.
const (
	PresetDefault      = "default"
	PresetConservative = "conservative"
	PresetAggressive   = "aggressive"
	PresetCustom       = "custom"
)

// DegradationConfig configures the severity ladder.
type DegradationConfig struct {
	// Enabled turns level evaluation on. A disabled controller stays Normal.
	Enabled bool `yaml:"enabled"`

	// Preset selects built-in thresholds. "custom" keeps Thresholds as given.
	Preset string `yaml:"preset"`

	Thresholds Thresholds `yaml:"thresholds"`

	// Recovery controls how the level moves back down. Off by default.
	Recovery RecoveryConfig `yaml:"recovery"`
}

// Thresholds holds the per-resource boundaries for each level.
// Memory and CPU are ratios where higher is worse. Disk is free MB where
// lower is worse.
type Thresholds struct {
	Memory MemoryThresholds `yaml:"memory"`
	DiskMB DiskThresholds   `yaml:"disk_mb"`
	CPU    CPUThresholds    `yaml:"cpu"`
}

// MemoryThresholds are fractions of the memory hard limit.
type MemoryThresholds struct {
	Warning   float64 `yaml:"warning"`
	Critical  float64 `yaml:"critical"`
	Emergency float64 `yaml:"emergency"`
}

// DiskThresholds are free-space floors in MB; lower is worse.
type DiskThresholds struct {
	Warning   uint64 `yaml:"warning"`
	Critical  uint64 `yaml:"critical"`
	Emergency uint64 `yaml:"emergency"`
}

// CPUThresholds has no emergency boundary; CPU alone never forces shutdown.
type CPUThresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// RecoveryConfig damps downward transitions.
type RecoveryConfig struct {
	// Hysteresis is subtracted from memory and CPU thresholds (and added to
	// disk thresholds, in MB×1000) when evaluating a move to a lower level.
	Hysteresis float64 `yaml:"hysteresis"`

	// MinDwell is the minimum time spent at a level before moving down.
	MinDwell time.Duration `yaml:"min_dwell"`

	// StepDown limits downward moves to one level per update.
	StepDown bool `yaml:"step_down"`
}

// Active reports whether any recovery damping is configured.
func (r RecoveryConfig) Active() bool {
	return r.Hysteresis > 0 || r.MinDwell > 0 || r.StepDown
}

// DefaultDegradation returns the enabled default preset with recovery off.
func DefaultDegradation() DegradationConfig {
	return DegradationConfig{
		Enabled:    true,
		Preset:     PresetDefault,
		Thresholds: DefaultThresholds(),
	}
}

// DegradationDisabled returns a config whose controller always reports Normal.
func DegradationDisabled() DegradationConfig {
	c := DefaultDegradation()
	c.Enabled = false
	return c
}

// DegradationConservative degrades early.
func DegradationConservative() DegradationConfig {
	c := DefaultDegradation()
	c.Preset = PresetConservative
	c.Thresholds = ConservativeThresholds()
	return c
}

// DegradationAggressive degrades late.
func DegradationAggressive() DegradationConfig {
	c := DefaultDegradation()
	c.Preset = PresetAggressive
	c.Thresholds = AggressiveThresholds()
	return c
}

// DefaultThresholds: memory 70/85/95%, disk 1000/500/100 MB, CPU 80/90%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Memory: MemoryThresholds{Warning: 0.70, Critical: 0.85, Emergency: 0.95},
		DiskMB: DiskThresholds{Warning: 1000, Critical: 500, Emergency: 100},
		CPU:    CPUThresholds{Warning: 0.80, Critical: 0.90},
	}
}

// ConservativeThresholds: memory 60/75/90%, disk 2000/1000/500 MB, CPU 70/85%.
func ConservativeThresholds() Thresholds {
	return Thresholds{
		Memory: MemoryThresholds{Warning: 0.60, Critical: 0.75, Emergency: 0.90},
		DiskMB: DiskThresholds{Warning: 2000, Critical: 1000, Emergency: 500},
		CPU:    CPUThresholds{Warning: 0.70, Critical: 0.85},
	}
}

// AggressiveThresholds: memory 80/90/98%, disk 500/200/50 MB, CPU 90/95%.
func AggressiveThresholds() Thresholds {
	return Thresholds{
		Memory: MemoryThresholds{Warning: 0.80, Critical: 0.90, Emergency: 0.98},
		DiskMB: DiskThresholds{Warning: 500, Critical: 200, Emergency: 50},
		CPU:    CPUThresholds{Warning: 0.90, Critical: 0.95},
	}
}

// ThresholdsFor returns the thresholds for a named preset.
func ThresholdsFor(preset string) (Thresholds, error) {
	switch preset {
	case "", PresetDefault:
		return DefaultThresholds(), nil
	case PresetConservative:
		return ConservativeThresholds(), nil
	case PresetAggressive:
		return AggressiveThresholds(), nil
	default:
		return Thresholds{}, fmt.Errorf("unknown degradation preset %q", preset)
	}
}

// ApplyPreset overwrites Thresholds from Preset unless Preset is "custom".
func (c *DegradationConfig) ApplyPreset() error {
	if c.Preset == PresetCustom {
		return nil
	}
	t, err := ThresholdsFor(c.Preset)
	if err != nil {
		return err
	}
	c.Thresholds = t
	return nil
}
