//go:build linux || darwin

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeBytes returns free space on the filesystem backing the output
// directory via statfs, matching the original implementation's
// GetDiskFreeSpaceEx-equivalent probe.
func (m *Manager) FreeBytes() (int64, error) {
	dir := m.OutputDirectory()
	if dir == "" {
		dir = m.DefaultDirectory()
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("storage: statfs: %w", err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
