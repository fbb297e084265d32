//go:build linux || darwin || freebsd

package platform

import (
	"golang.org/x/sys/unix"
)

func statfs(path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskUsage{}, err
	}
	bsize := uint64(st.Bsize)
	return DiskUsage{
		TotalBytes:     uint64(st.Blocks) * bsize,
		AvailableBytes: uint64(st.Bavail) * bsize,
	}, nil
}
