package platform

import (
	"sync"

	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// Fake is a Probe with scripted readings. The zero value reports every
// capability with all readings zero.
type Fake struct {
	mu sync.Mutex

	disk    DiskUsage
	rss     uint64
	total   uint64
	cpu     CPUTimes
	diskErr error
	memErr  error
	cpuErr  error
	caps    *Capabilities

	diskCalls int
	memCalls  int
	cpuCalls  int
}

var _ Probe = (*Fake)(nil)

// NewFake returns a Fake reporting availableMB free out of totalMB.
func NewFake(totalMB, availableMB uint64) *Fake {
	f := &Fake{}
	f.SetDiskMB(totalMB, availableMB)
	return f
}

// SetDiskMB sets the disk reading in megabytes.
func (f *Fake) SetDiskMB(totalMB, availableMB uint64) {
	f.mu.Lock()
	f.disk = DiskUsage{TotalBytes: totalMB << 20, AvailableBytes: availableMB << 20}
	f.mu.Unlock()
}

// SetResidentMB sets the memory reading in megabytes.
func (f *Fake) SetResidentMB(mb uint64) {
	f.mu.Lock()
	f.rss = mb << 20
	f.mu.Unlock()
}

// SetTotalMB sets the physical memory reading in megabytes.
func (f *Fake) SetTotalMB(mb uint64) {
	f.mu.Lock()
	f.total = mb << 20
	f.mu.Unlock()
}

// AdvanceCPU adds busy and idle seconds to the cumulative CPU counters.
func (f *Fake) AdvanceCPU(busy, idle float64) {
	f.mu.Lock()
	f.cpu.Idle += idle
	f.cpu.Total += busy + idle
	f.mu.Unlock()
}

// FailDisk makes DiskUsage return err. Nil clears the failure.
func (f *Fake) FailDisk(err error) {
	f.mu.Lock()
	f.diskErr = err
	f.mu.Unlock()
}

// FailMemory makes ResidentMemory return err.
func (f *Fake) FailMemory(err error) {
	f.mu.Lock()
	f.memErr = err
	f.mu.Unlock()
}

// FailCPU makes CPUTimes return err.
func (f *Fake) FailCPU(err error) {
	f.mu.Lock()
	f.cpuErr = err
	f.mu.Unlock()
}

// SetCapabilities overrides the reported capabilities.
func (f *Fake) SetCapabilities(c Capabilities) {
	f.mu.Lock()
	f.caps = &c
	f.mu.Unlock()
}

// DiskUsage returns the reading set by SetDiskMB.
func (f *Fake) DiskUsage(string) (DiskUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diskCalls++
	if f.caps != nil && !f.caps.Disk {
		return DiskUsage{}, sgerrors.ErrUnsupported
	}
	return f.disk, f.diskErr
}

// ResidentMemory returns the reading set by SetResidentMB.
func (f *Fake) ResidentMemory() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memCalls++
	if f.caps != nil && !f.caps.Memory {
		return 0, sgerrors.ErrUnsupported
	}
	return f.rss, f.memErr
}

// TotalMemory returns the reading set by SetTotalMB, failing with the same
// error and capability as ResidentMemory.
func (f *Fake) TotalMemory() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.caps != nil && !f.caps.Memory {
		return 0, sgerrors.ErrUnsupported
	}
	return f.total, f.memErr
}

// CPUTimes returns the counters accumulated by AdvanceCPU.
func (f *Fake) CPUTimes() (CPUTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuCalls++
	if f.caps != nil && !f.caps.CPU {
		return CPUTimes{}, sgerrors.ErrUnsupported
	}
	return f.cpu, f.cpuErr
}

// Capabilities returns the override, or every capability.
func (f *Fake) Capabilities() Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.caps != nil {
		return *f.caps
	}
	return Capabilities{Disk: true, Memory: true, CPU: true}
}

// DiskCalls returns how many times DiskUsage was called.
func (f *Fake) DiskCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diskCalls
}

// MemoryCalls returns how many times ResidentMemory was called.
func (f *Fake) MemoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memCalls
}

// CPUCalls returns how many times CPUTimes was called.
func (f *Fake) CPUCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cpuCalls
}
