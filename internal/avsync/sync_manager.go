// Package avsync anchors a recording session's presentation-time origin
// and accumulates the time spent paused, so that paced samples can be
// rebased onto a PTS timeline with no gap for pause intervals.
package avsync

import "screenrec/internal/clock"

// SyncManager maintains the session's presentation-time origin and total
// paused duration. All ticks are raw Clock ticks; PTS is always in the
// 100-ns media timebase.
type SyncManager struct {
	clk *clock.Clock

	anchor         int64
	pauseStart     int64
	pausedAccumHns int64
}

// New constructs a SyncManager bound to the process clock singleton.
func New() *SyncManager {
	return &SyncManager{clk: clock.Instance()}
}

// Start captures the anchor tick and zeroes pause state.
func (s *SyncManager) Start() {
	s.anchor = s.clk.NowTicks()
	s.pauseStart = 0
	s.pausedAccumHns = 0
}

// Pause captures the tick at which the pause began.
func (s *SyncManager) Pause() {
	s.pauseStart = s.clk.NowTicks()
}

// Resume adds the elapsed pause duration to the accumulated offset and
// clears the pause marker. Calling Resume without a prior Pause is a no-op.
func (s *SyncManager) Resume() {
	if s.pauseStart == 0 {
		return
	}
	now := s.clk.NowTicks()
	s.pausedAccumHns += s.clk.TicksToHns(now - s.pauseStart)
	s.pauseStart = 0
}

// ToPTS converts a raw tick reading to a PTS relative to the session
// anchor, with accumulated pause time subtracted out.
func (s *SyncManager) ToPTS(ticks int64) int64 {
	return s.clk.TicksToHns(ticks-s.anchor) - s.pausedAccumHns
}

// NowPTS is a convenience for ToPTS(clk.NowTicks()).
func (s *SyncManager) NowPTS() int64 {
	return s.ToPTS(s.clk.NowTicks())
}
