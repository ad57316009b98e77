// Package storage implements the StorageManager component: output
// directory resolution, unique filename generation, free-space polling,
// and orphaned-staging-file discovery.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	stagingSuffix = ".partial.mp4"
	finalSuffix   = ".mp4"

	// MinFreeBytes is the 500MiB low-disk threshold from the component design.
	MinFreeBytes int64 = 500 * 1024 * 1024

	defaultPollInterval = 5 * time.Second
)

// Manager resolves the output directory, names staging files, and polls
// free disk space.
type Manager struct {
	mu        sync.Mutex
	outputDir string

	pollStop chan struct{}
	pollDone chan struct{}
}

// New constructs a Manager. Callers should call DefaultDirectory or
// SetOutputDirectory before GenerateFilename.
func New() *Manager {
	return &Manager{}
}

// DefaultDirectory resolves <user-videos>/Recordings, creating it if
// missing, falling back to a hard-coded path if the user's home
// directory cannot be determined or the directory cannot be created.
func (m *Manager) DefaultDirectory() string {
	dir := resolveVideosDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = filepath.Join(os.TempDir(), "ScreenRecRecordings")
		_ = os.MkdirAll(dir, 0o755)
	}
	m.mu.Lock()
	m.outputDir = dir
	m.mu.Unlock()
	return dir
}

func resolveVideosDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "ScreenRecRecordings")
	}
	return filepath.Join(home, "Videos", "Recordings")
}

// SetOutputDirectory validates and creates path, rejecting on write
// failure.
func (m *Manager) SetOutputDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("storage: create output directory: %w", err)
	}
	probe := filepath.Join(path, ".screenrec-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("storage: output directory not writable: %w", err)
	}
	_ = f.Close()
	_ = os.Remove(probe)

	m.mu.Lock()
	m.outputDir = path
	m.mu.Unlock()
	return nil
}

// OutputDirectory returns the currently configured output directory.
func (m *Manager) OutputDirectory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputDir
}

// GenerateFilename returns a unique staging path under the output
// directory: ScreenRec_YYYY-MM-DD_HH-MM-SS[.partial.mp4], probing
// _001, _002, ... until neither the staging nor final path exists.
func (m *Manager) GenerateFilename(now time.Time) string {
	dir := m.OutputDirectory()
	if dir == "" {
		dir = m.DefaultDirectory()
	}
	base := fmt.Sprintf("ScreenRec_%s", now.Format("2006-01-02_15-04-05"))

	candidate := base
	attempt := 0
	for {
		staging := filepath.Join(dir, candidate+stagingSuffix)
		final := filepath.Join(dir, candidate+finalSuffix)
		if !exists(staging) && !exists(final) {
			return staging
		}
		attempt++
		candidate = fmt.Sprintf("%s_%03d", base, attempt)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PartialToFinal is a pure string transformation: replace the
// ".partial.mp4" suffix with ".mp4". Idempotent if the suffix is absent.
func PartialToFinal(staging string) string {
	if strings.HasSuffix(staging, stagingSuffix) {
		return strings.TrimSuffix(staging, stagingSuffix) + finalSuffix
	}
	return staging
}

// IsLow reports whether free space in the output directory is below
// threshold.
func (m *Manager) IsLow(threshold int64) (bool, error) {
	free, err := m.FreeBytes()
	if err != nil {
		return false, err
	}
	return free < threshold, nil
}

// FindOrphans lists files in the output directory whose names end in
// ".partial.mp4".
func (m *Manager) FindOrphans() ([]string, error) {
	dir := m.OutputDirectory()
	if dir == "" {
		dir = m.DefaultDirectory()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read output directory: %w", err)
	}

	var orphans []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stagingSuffix) {
			continue
		}
		orphans = append(orphans, filepath.Join(dir, entry.Name()))
	}
	return orphans, nil
}

// StartPolling launches a background goroutine that, every interval,
// evaluates IsLow and invokes callback once per tick it observes low.
// The callback may re-enter to call StopPolling; the poller is
// message-passing rather than re-entrant-joining, so that self-stop
// cannot deadlock (see the design notes' "cleaner and equally correct"
// resolution).
func (m *Manager) StartPolling(interval time.Duration, threshold int64, callback func()) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if threshold <= 0 {
		threshold = MinFreeBytes
	}

	m.mu.Lock()
	if m.pollStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.pollStop = stop
	m.pollDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				low, err := m.IsLow(threshold)
				if err == nil && low {
					callback()
				}
			}
		}
	}()
}

// StopPolling is idempotent. It does not block if called from inside the
// polling callback itself — the poller's own goroutine only observes
// the stop channel on its next tick, so stopping never requires a
// self-join.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	stop := m.pollStop
	m.pollStop = nil
	m.pollDone = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
}
