//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/prometheus/procfs"
)

type linuxProbe struct {
	once sync.Once
	fs   procfs.FS
	err  error
}

// Default returns the Probe for the running OS.
func Default() Probe {
	return &linuxProbe{}
}

func (p *linuxProbe) procFS() (procfs.FS, error) {
	p.once.Do(func() {
		p.fs, p.err = procfs.NewDefaultFS()
	})
	return p.fs, p.err
}

func (p *linuxProbe) DiskUsage(path string) (DiskUsage, error) {
	return statfs(path)
}

func (p *linuxProbe) ResidentMemory() (uint64, error) {
	fs, err := p.procFS()
	if err != nil {
		return 0, err
	}
	self, err := fs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := self.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.ResidentMemory()), nil
}

func (p *linuxProbe) TotalMemory() (uint64, error) {
	fs, err := p.procFS()
	if err != nil {
		return 0, err
	}
	info, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if info.MemTotalBytes == nil {
		return 0, fmt.Errorf("meminfo: MemTotal missing")
	}
	return *info.MemTotalBytes, nil
}

func (p *linuxProbe) CPUTimes() (CPUTimes, error) {
	fs, err := p.procFS()
	if err != nil {
		return CPUTimes{}, err
	}
	stat, err := fs.Stat()
	if err != nil {
		return CPUTimes{}, err
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	// Guest time is already accounted in User and Nice.
	total := c.User + c.Nice + c.System + idle + c.IRQ + c.SoftIRQ + c.Steal
	return CPUTimes{Idle: idle, Total: total}, nil
}

func (p *linuxProbe) Capabilities() Capabilities {
	_, err := p.procFS()
	return Capabilities{Disk: true, Memory: err == nil, CPU: err == nil}
}
