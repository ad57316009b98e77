//go:build windows

package storage

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// FreeBytes returns free space on the volume backing the output
// directory via GetDiskFreeSpaceEx.
func (m *Manager) FreeBytes() (int64, error) {
	dir := m.OutputDirectory()
	if dir == "" {
		dir = m.DefaultDirectory()
	}
	path, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, fmt.Errorf("storage: encode path: %w", err)
	}
	var freeBytesAvailable uint64
	if err := windows.GetDiskFreeSpaceEx(path, &freeBytesAvailable, nil, nil); err != nil {
		return 0, fmt.Errorf("storage: GetDiskFreeSpaceEx: %w", err)
	}
	return int64(freeBytesAvailable), nil
}
