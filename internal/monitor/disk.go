// Package monitor watches free disk space, process memory and CPU load and
// turns breaches of the configured limits into typed errors.
//
// Every monitor counts calls to Check and only queries the platform probe on
// every CheckInterval-th call; CheckNow always queries. A monitor whose
// config is disabled never queries and never fails.
package monitor

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

const bytesPerMB = 1024 * 1024

// Disk guards free space on the filesystem holding the output path.
type Disk struct {
	cfg   config.DiskConfig
	probe platform.Probe
	log   *slog.Logger

	ops          atomic.Uint64
	softWarnings atomic.Uint64
	hardExceeded atomic.Bool
	bytesWritten atomic.Uint64

	// Last successful reading, for the degradation controller.
	lastAvailableMB atomic.Uint64
	haveReading     atomic.Bool
}

// DiskStats is a snapshot of the disk monitor.
type DiskStats struct {
	TotalBytes            uint64
	AvailableBytes        uint64
	UsedBytes             uint64
	ChecksPerformed       uint64
	SoftLimitWarnings     uint64
	HardLimitExceeded     bool
	EstimatedBytesWritten uint64
}

// NewDisk creates a disk monitor. A nil probe selects platform.Default().
func NewDisk(cfg config.DiskConfig, probe platform.Probe) *Disk {
	if probe == nil {
		probe = platform.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "."
	}
	return &Disk{
		cfg:   cfg,
		probe: probe,
		log:   logging.Component("disk"),
	}
}

// Enabled reports whether the monitor performs checks.
func (d *Disk) Enabled() bool {
	return d.cfg.Enabled
}

// Config returns the monitor configuration.
func (d *Disk) Config() config.DiskConfig {
	return d.cfg
}

// Check counts the call and runs CheckNow on every CheckInterval-th call,
// starting with the first.
func (d *Disk) Check() error {
	if !d.cfg.Enabled {
		return nil
	}
	count := d.ops.Add(1) - 1
	if count%interval(d.cfg.CheckInterval) != 0 {
		return nil
	}
	return d.CheckNow()
}

// CheckNow queries free space and compares it with the limits.
// Free space below hard+reserve returns a *DiskExhaustedError; below the soft
// limit it only bumps the warning counter. An unreadable filesystem passes.
func (d *Disk) CheckNow() error {
	if !d.cfg.Enabled {
		return nil
	}

	availableMB := d.readAvailableMB()

	required := d.cfg.HardLimitMB + d.cfg.ReserveMB
	if availableMB < required {
		d.hardExceeded.Store(true)
		d.log.Error("disk hard limit breached",
			"path", d.cfg.Path,
			"available_mb", availableMB,
			"required_mb", required)
		return sgerrors.NewDiskExhausted(availableMB, required)
	}

	if availableMB < d.cfg.SoftLimitMB {
		n := d.softWarnings.Add(1)
		d.log.Warn("disk space below soft limit",
			"path", d.cfg.Path,
			"available_mb", availableMB,
			"soft_limit_mb", d.cfg.SoftLimitMB,
			"warnings", n)
	}

	return nil
}

// CheckBeforeWrite verifies that a write of estimatedBytes still leaves
// hard+reserve free. It does not count towards the check interval.
func (d *Disk) CheckBeforeWrite(estimatedBytes uint64) error {
	if !d.cfg.Enabled {
		return nil
	}

	availableMB := d.readAvailableMB()
	estimatedMB := estimatedBytes / bytesPerMB
	required := d.cfg.HardLimitMB + d.cfg.ReserveMB + estimatedMB

	if availableMB < required {
		err := sgerrors.NewDiskExhausted(availableMB, required)
		err.Message = fmt.Sprintf("insufficient disk space for write: %d MB available, need %d MB "+
			"(estimated write: %d MB, reserve: %d MB)",
			availableMB, required, estimatedMB, d.cfg.ReserveMB)
		return err
	}
	return nil
}

// RecordWrite adds n to the written-bytes estimate.
func (d *Disk) RecordWrite(n uint64) {
	d.bytesWritten.Add(n)
}

// AvailableMB queries free space now. Zero when the query fails.
func (d *Disk) AvailableMB() uint64 {
	usage, err := d.probe.DiskUsage(d.cfg.Path)
	if err != nil {
		return 0
	}
	return usage.AvailableBytes / bytesPerMB
}

// LastReading returns free space observed by the most recent successful
// CheckNow or CheckBeforeWrite.
func (d *Disk) LastReading() (uint64, bool) {
	return d.lastAvailableMB.Load(), d.haveReading.Load()
}

// IsAvailable reports whether the platform can measure free space.
func (d *Disk) IsAvailable() bool {
	return d.probe.Capabilities().Disk
}

// Stats returns a snapshot, querying the filesystem for the byte counts.
func (d *Disk) Stats() DiskStats {
	s := DiskStats{
		ChecksPerformed:       d.ops.Load(),
		SoftLimitWarnings:     d.softWarnings.Load(),
		HardLimitExceeded:     d.hardExceeded.Load(),
		EstimatedBytesWritten: d.bytesWritten.Load(),
	}
	if usage, err := d.probe.DiskUsage(d.cfg.Path); err == nil {
		s.TotalBytes = usage.TotalBytes
		s.AvailableBytes = usage.AvailableBytes
		if usage.TotalBytes > usage.AvailableBytes {
			s.UsedBytes = usage.TotalBytes - usage.AvailableBytes
		}
	}
	return s
}

// ResetStats zeroes the counters and flags.
func (d *Disk) ResetStats() {
	d.ops.Store(0)
	d.softWarnings.Store(0)
	d.hardExceeded.Store(false)
	d.bytesWritten.Store(0)
}

func (d *Disk) readAvailableMB() uint64 {
	usage, err := d.probe.DiskUsage(d.cfg.Path)
	if err != nil {
		d.log.Debug("disk usage unavailable", "path", d.cfg.Path, "error", err)
		return math.MaxUint64
	}
	mb := usage.AvailableBytes / bytesPerMB
	d.lastAvailableMB.Store(mb)
	d.haveReading.Store(true)
	return mb
}

// interval normalises a configured check interval to at least one.
func interval(n int) uint64 {
	if n <= 0 {
		return 1
	}
	return uint64(n)
}
