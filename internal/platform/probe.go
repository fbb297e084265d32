// Package platform reads free disk space, memory and CPU times from the
// operating system.
//
// Each OS provides one implementation of Probe. Unsupported platforms get
// Null, which reports no capabilities and returns ErrUnsupported from every
// query so the monitors built on top of it become no-ops.
package platform

import (
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// Capabilities reports which queries a Probe can answer.
type Capabilities struct {
	Disk   bool
	Memory bool
	CPU    bool
}

// DiskUsage is the result of a filesystem statistics query.
type DiskUsage struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// CPUTimes are cumulative system-wide CPU times in seconds.
type CPUTimes struct {
	Idle  float64
	Total float64
}

// Probe is the narrow OS interface consumed by the monitors.
type Probe interface {
	// DiskUsage returns total and available bytes for the filesystem containing path.
	DiskUsage(path string) (DiskUsage, error)

	// ResidentMemory returns the resident set size of this process in bytes.
	ResidentMemory() (uint64, error)

	// TotalMemory returns the physical memory of the machine in bytes.
	TotalMemory() (uint64, error)

	// CPUTimes returns cumulative CPU times for the whole system.
	CPUTimes() (CPUTimes, error)

	// Capabilities reports which of the queries above are supported.
	Capabilities() Capabilities
}

// Null is the fallback Probe for unsupported platforms.
type Null struct{}

var _ Probe = Null{}

// DiskUsage returns ErrUnsupported.
func (Null) DiskUsage(string) (DiskUsage, error) { return DiskUsage{}, sgerrors.ErrUnsupported }

// ResidentMemory returns ErrUnsupported.
func (Null) ResidentMemory() (uint64, error) { return 0, sgerrors.ErrUnsupported }

// TotalMemory returns ErrUnsupported.
func (Null) TotalMemory() (uint64, error) { return 0, sgerrors.ErrUnsupported }

// CPUTimes returns ErrUnsupported.
func (Null) CPUTimes() (CPUTimes, error) { return CPUTimes{}, sgerrors.ErrUnsupported }

// Capabilities reports nothing supported.
func (Null) Capabilities() Capabilities { return Capabilities{} }
