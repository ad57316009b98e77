// Package clock supplies the pipeline's single process-wide monotonic
// timebase: raw tick readings and their conversion to the 100-ns media
// timebase used throughout the pipeline.
package clock

import (
	"sync"
	"time"
)

// Clock is a lazily-initialized, process-wide singleton. It is immutable
// after first use: the epoch is captured once and never moves.
type Clock struct {
	epoch time.Time
}

var (
	instance *Clock
	once     sync.Once
)

// Instance returns the process-wide Clock, initializing it on first call.
func Instance() *Clock {
	once.Do(func() {
		instance = &Clock{epoch: time.Now()}
	})
	return instance
}

// NowTicks returns a raw monotonic tick reading. Ticks are nanoseconds
// since the clock's epoch; they carry no relation to wall-clock time and
// are only meaningful relative to other readings from this process.
func (c *Clock) NowTicks() int64 {
	return time.Since(c.epoch).Nanoseconds()
}

// NowHns returns the current time in 100-ns units since the epoch.
func (c *Clock) NowHns() int64 {
	return c.TicksToHns(c.NowTicks())
}

// TicksToHns converts a raw tick reading (nanoseconds) to the 100-ns
// media timebase. Pure int64 division — no floating-point rounding, so
// the conversion does not drift across multi-day sessions.
func (c *Clock) TicksToHns(ticks int64) int64 {
	return ticks / 100
}
