//go:build darwin || freebsd

package platform

import (
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// bsdProbe answers disk queries only.
type bsdProbe struct{}

// Default returns the Probe for the running OS.
func Default() Probe {
	return bsdProbe{}
}

func (bsdProbe) DiskUsage(path string) (DiskUsage, error) { return statfs(path) }
func (bsdProbe) ResidentMemory() (uint64, error)           { return 0, sgerrors.ErrUnsupported }
func (bsdProbe) TotalMemory() (uint64, error)              { return 0, sgerrors.ErrUnsupported }
func (bsdProbe) CPUTimes() (CPUTimes, error)               { return CPUTimes{}, sgerrors.ErrUnsupported }
func (bsdProbe) Capabilities() Capabilities                { return Capabilities{Disk: true} }
