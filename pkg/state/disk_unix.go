//go:build linux || darwin || freebsd || netbsd || openbsd

package state

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskSpace reports the filesystem holding path.
func DiskSpace(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Space{Total: uint64(st.Blocks) * bsize, Available: uint64(st.Bavail) * bsize}, nil
}
