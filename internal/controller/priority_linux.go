//go:build linux

package controller

import "golang.org/x/sys/unix"

// raiseEncodePriority nudges the encode goroutine's backing OS thread to
// a higher scheduling priority, best-effort. Go exposes no portable
// thread-priority API (spec §5); this is the explicit, narrow,
// Linux-only realization, silently ignored on failure (e.g. insufficient
// privilege) since the pacer/encoder remain correct at default priority.
func raiseEncodePriority() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -5)
}
