// Package governor combines the disk, memory and CPU monitors with the
// degradation controller behind a single periodic check.
package governor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/degradation"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/monitor"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

const emergencyMessage = "Resource limits critically exceeded, initiating graceful shutdown"

// Governor is the single entry point consumers call between batches.
// It is safe for concurrent use.
type Governor struct {
	guard config.GuardConfig
	log   *slog.Logger

	disk       *monitor.Disk
	memory     *monitor.Memory
	cpu        *monitor.CPU
	controller *degradation.Controller

	checks atomic.Uint64
}

// Stats aggregates every component's statistics.
type Stats struct {
	Memory          monitor.MemoryStats
	Disk            monitor.DiskStats
	CPU             monitor.CPUStats
	Degradation     degradation.Stats
	Level           degradation.Level
	ChecksPerformed uint64
}

// New creates a governor. A nil probe selects platform.Default().
func New(guard config.GuardConfig, deg config.DegradationConfig, probe platform.Probe) *Governor {
	if probe == nil {
		probe = platform.Default()
	}
	return &Governor{
		guard:      guard,
		log:        logging.Component("governor"),
		disk:       monitor.NewDisk(guard.Disk, probe),
		memory:     monitor.NewMemory(guard.Memory, probe),
		cpu:        monitor.NewCPU(guard.CPU, probe),
		controller: degradation.New(deg),
	}
}

// FromConfig creates a governor from the guard and degradation sections.
func FromConfig(cfg *config.Config, probe platform.Probe) *Governor {
	return New(cfg.Guard, cfg.Degradation, probe)
}

// Disabled returns a governor whose checks always pass at LevelNormal.
func Disabled() *Governor {
	guard := config.GuardConfig{
		CheckInterval: 1000,
		Disk:          config.DiskDisabled(),
		Memory:        config.DefaultMemory(),
		CPU:           config.DefaultCPU(),
	}
	return New(guard, config.DegradationDisabled(), platform.Null{})
}

// Check runs CheckNow on every CheckInterval-th call, starting with the
// first, and otherwise returns the cached level.
func (g *Governor) Check() (degradation.Level, error) {
	count := g.checks.Add(1) - 1
	n := uint64(g.guard.CheckInterval)
	if n == 0 {
		n = 1
	}
	if count%n != 0 {
		return g.controller.CurrentLevel(), nil
	}
	return g.CheckNow()
}

// CheckNow checks memory, then disk, samples CPU and updates the level.
// Hard limit breaches return the monitor's exhaustion error; reaching
// LevelEmergency returns an *EmergencyError.
func (g *Governor) CheckNow() (degradation.Level, error) {
	if err := g.memory.CheckNow(); err != nil {
		return g.controller.CurrentLevel(), err
	}

	if err := g.disk.CheckNow(); err != nil {
		return g.controller.CurrentLevel(), err
	}

	cpuLoad, cpuOK := g.cpu.Sample()

	status := degradation.Status{}
	if ratio, ok := g.memory.UsageRatio(); ok {
		status = status.WithMemory(ratio)
	}
	if g.disk.Enabled() {
		if mb, ok := g.disk.LastReading(); ok {
			status = status.WithDisk(mb)
		}
	}
	if cpuOK {
		status = status.WithCPU(cpuLoad)
	}

	level, _ := g.controller.Update(status)
	if level == degradation.LevelEmergency {
		g.log.Error("emergency level reached, shutting down",
			"memory_ratio", status.MemoryRatio,
			"disk_available_mb", status.DiskAvailableMB,
			"cpu_load", status.CPULoad)
		return level, &sgerrors.EmergencyError{
			Level:   level.String(),
			Message: emergencyMessage,
		}
	}

	return level, nil
}

// PreCheck tells a producer whether to start more work at the current level.
func (g *Governor) PreCheck() PreCheckResult {
	level := g.controller.CurrentLevel()
	actions := degradation.ActionsFor(level)

	switch {
	case actions.Terminate:
		return PreCheckResult{Kind: Abort, Message: "Resources critically low, cannot proceed"}
	case actions.ImmediateFlush:
		return PreCheckResult{Kind: ProceedWithCaution, Message: "Resources constrained, reduce batch size"}
	case level != degradation.LevelNormal:
		return PreCheckResult{Kind: Reduced, Message: "Operating in degraded mode"}
	default:
		return PreCheckResult{Kind: Proceed}
	}
}

// CheckBeforeWrite delegates to the disk monitor.
func (g *Governor) CheckBeforeWrite(estimatedBytes uint64) error {
	return g.disk.CheckBeforeWrite(estimatedBytes)
}

// RecordWrite delegates to the disk monitor.
func (g *Governor) RecordWrite(n uint64) {
	g.disk.RecordWrite(n)
}

// Actions returns the actions for the current level.
func (g *Governor) Actions() degradation.Actions {
	return g.controller.Actions()
}

// Level returns the current degradation level.
func (g *Governor) Level() degradation.Level {
	return g.controller.CurrentLevel()
}

// IsDegraded reports whether the level is above Normal.
func (g *Governor) IsDegraded() bool {
	return g.controller.IsDegraded()
}

// MaybeThrottle sleeps while the CPU monitor is throttling.
func (g *Governor) MaybeThrottle() {
	g.cpu.MaybeThrottle()
}

// MaybeThrottleContext is MaybeThrottle with cancellation.
func (g *Governor) MaybeThrottleContext(ctx context.Context) error {
	return g.cpu.MaybeThrottleContext(ctx)
}

// SetOnLevelChange registers a callback for level transitions.
func (g *Governor) SetOnLevelChange(fn func(old, new degradation.Level)) {
	g.controller.SetOnLevelChange(fn)
}

// Stats returns statistics from every component.
func (g *Governor) Stats() Stats {
	return Stats{
		Memory:          g.memory.Stats(),
		Disk:            g.disk.Stats(),
		CPU:             g.cpu.Stats(),
		Degradation:     g.controller.Stats(),
		Level:           g.controller.CurrentLevel(),
		ChecksPerformed: g.checks.Load(),
	}
}

// ResetStats resets every monitor, the controller level and the check counter.
func (g *Governor) ResetStats() {
	g.memory.ResetStats()
	g.disk.ResetStats()
	g.cpu.ResetStats()
	g.controller.Reset()
	g.checks.Store(0)
}

// IsAvailable reports whether the platform can measure at least one resource.
func (g *Governor) IsAvailable() bool {
	return g.memory.IsAvailable() || g.disk.IsAvailable() || g.cpu.IsAvailable()
}

// CurrentMemoryMB returns resident memory in MB.
func (g *Governor) CurrentMemoryMB() uint64 {
	return g.memory.CurrentUsageMB()
}

// CurrentDiskAvailableMB returns free space on the monitored path in MB.
func (g *Governor) CurrentDiskAvailableMB() uint64 {
	return g.disk.AvailableMB()
}

// CurrentCPULoad returns the most recent CPU sample.
func (g *Governor) CurrentCPULoad() float64 {
	return g.cpu.CurrentLoad()
}

// Disk returns the disk monitor.
func (g *Governor) Disk() *monitor.Disk { return g.disk }

// Memory returns the memory monitor.
func (g *Governor) Memory() *monitor.Memory { return g.memory }

// CPU returns the CPU monitor.
func (g *Governor) CPU() *monitor.CPU { return g.cpu }

// Controller returns the degradation controller.
func (g *Governor) Controller() *degradation.Controller { return g.controller }

// PreCheckKind is the verdict of PreCheck.
type PreCheckKind int

const (
	Proceed PreCheckKind = iota
	Reduced
	ProceedWithCaution
	Abort
)

// String returns the string representation of the kind.
func (k PreCheckKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Reduced:
		return "reduced"
	case ProceedWithCaution:
		return "proceed_with_caution"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// PreCheckResult pairs a verdict with an explanation. Proceed has no message.
type PreCheckResult struct {
	Kind    PreCheckKind
	Message string
}

// ShouldProceed is false only for Abort.
func (r PreCheckResult) ShouldProceed() bool {
	return r.Kind != Abort
}
