package governor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

// Builder assembles a Governor fluently. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	guard config.GuardConfig
	deg   config.DegradationConfig
	probe platform.Probe
}

// NewBuilder starts from the default guard and degradation settings:
// disk enabled, memory and CPU disabled, default preset.
func NewBuilder() *Builder {
	def := config.DefaultConfig()
	return &Builder{
		guard: def.Guard,
		deg:   def.Degradation,
	}
}

// MemoryLimit enables the memory monitor with a soft limit at 80%.
func (b *Builder) MemoryLimit(mb uint64) *Builder {
	b.guard.Memory = config.MemoryWithLimitMB(mb)
	return b
}

// AggressiveMemory checks memory five times as often.
func (b *Builder) AggressiveMemory() *Builder {
	b.guard.Memory = b.guard.Memory.WithAggressive()
	return b
}

// MinFreeDisk sets the disk hard limit and a soft limit five times larger,
// keeping the current path.
func (b *Builder) MinFreeDisk(mb uint64) *Builder {
	path := b.guard.Disk.Path
	b.guard.Disk = config.DiskWithMinFreeMB(mb).WithPath(path)
	return b
}

// DiskReserve sets the extra headroom added to the disk hard limit.
func (b *Builder) DiskReserve(mb uint64) *Builder {
	b.guard.Disk = b.guard.Disk.WithReserve(mb)
	return b
}

// OutputPath selects the filesystem the disk monitor watches.
func (b *Builder) OutputPath(path string) *Builder {
	b.guard.Disk = b.guard.Disk.WithPath(path)
	return b
}

// NoDisk disables the disk monitor.
func (b *Builder) NoDisk() *Builder {
	b.guard.Disk.Enabled = false
	return b
}

// CPUMonitoring enables the CPU monitor with the given thresholds.
func (b *Builder) CPUMonitoring(high, critical float64) *Builder {
	b.guard.CPU.Enabled = true
	b.guard.CPU.HighThreshold = high
	b.guard.CPU.CriticalThreshold = critical
	return b
}

// CPUSampleInterval sets the minimum time between CPU samples.
func (b *Builder) CPUSampleInterval(d time.Duration) *Builder {
	b.guard.CPU.SampleInterval = d
	return b
}

// AutoThrottle enables MaybeThrottle with the given delay.
func (b *Builder) AutoThrottle(delay time.Duration) *Builder {
	b.guard.CPU.AutoThrottle = true
	b.guard.CPU.ThrottleDelay = delay
	return b
}

// Degradation replaces the degradation settings.
func (b *Builder) Degradation(cfg config.DegradationConfig) *Builder {
	b.deg = cfg
	return b
}

// Conservative selects thresholds that degrade early.
func (b *Builder) Conservative() *Builder {
	b.deg = config.DegradationConservative()
	return b
}

// Aggressive selects thresholds that degrade late.
func (b *Builder) Aggressive() *Builder {
	b.deg = config.DegradationAggressive()
	return b
}

// Recovery damps downward level changes.
func (b *Builder) Recovery(r config.RecoveryConfig) *Builder {
	b.deg.Recovery = r
	return b
}

// CheckInterval sets how many Check calls pass between real checks.
func (b *Builder) CheckInterval(n int) *Builder {
	b.guard.CheckInterval = n
	return b
}

// Probe overrides the platform probe.
func (b *Builder) Probe(p platform.Probe) *Builder {
	b.probe = p
	return b
}

// Build validates the accumulated settings and creates the Governor.
func (b *Builder) Build() (*Governor, error) {
	var errs []error
	if err := b.guard.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("guard: %w", err))
	}
	if err := b.deg.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("degradation: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return New(b.guard, b.deg, b.probe), nil
}

// MustBuild is Build that panics on invalid settings.
func (b *Builder) MustBuild() *Governor {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
