//go:build !linux

package controller

// raiseEncodePriority has no portable realization outside Linux; the
// encode goroutine runs at the default OS thread priority.
func raiseEncodePriority() {}
