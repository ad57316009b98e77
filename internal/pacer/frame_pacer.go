// Package pacer absorbs jitter on inbound capture timestamps so the
// encoder sees smooth, monotonic presentation timestamps.
package pacer

import "screenrec/internal/domain"

// thresholdNumerator/thresholdDenominator express the 1.5x gap threshold
// and 2x clamp using integer arithmetic, matching the 100-ns media timebase.
const (
	thresholdNumerator   = 3
	thresholdDenominator = 2
	clampMultiplier      = 2
)

// FramePacer smooths jittery capture PTS into a strictly increasing
// output sequence, inserting duplicate markers across large gaps and
// clamping the advance so a missed burst cannot compound drift.
type FramePacer struct {
	targetIntervalHns int64

	bootstrapped bool
	lastRaw      int64
	smoothed     int64

	dups  int64
	drops int64
}

// New constructs a FramePacer for the given frame rate. T, the target
// frame interval, is 10,000,000/fps 100-ns units (333,333 for 30fps).
func New(fps int) *FramePacer {
	p := &FramePacer{}
	p.Initialize(fps)
	return p
}

// Initialize (re)sets the target interval from a frame rate.
func (p *FramePacer) Initialize(fps int) {
	if fps <= 0 {
		fps = 30
	}
	p.targetIntervalHns = 10_000_000 / int64(fps)
}

// Reset clears the bootstrap state so the next Pace call re-anchors
// last_raw/smoothed. Called on Resume so the pause gap is not misread as
// a missed frame.
func (p *FramePacer) Reset() {
	p.bootstrapped = false
	p.lastRaw = 0
	p.smoothed = 0
}

// Pace applies the pacing algorithm to a single raw capture PTS.
func (p *FramePacer) Pace(rawPTS int64, queueFull bool) (domain.PaceAction, int64) {
	if queueFull {
		p.drops++
		return domain.PaceDrop, rawPTS
	}

	if !p.bootstrapped {
		p.bootstrapped = true
		p.lastRaw = rawPTS
		p.smoothed = rawPTS
		return domain.PaceAccept, rawPTS
	}

	gap := rawPTS - p.lastRaw
	threshold := p.targetIntervalHns * thresholdNumerator / thresholdDenominator

	action := domain.PaceAccept
	if gap > threshold {
		p.dups++
		action = domain.PaceDuplicate
	}

	clampedGap := gap
	if max := p.targetIntervalHns * clampMultiplier; clampedGap > max {
		clampedGap = max
	}
	p.smoothed += clampedGap
	p.lastRaw = rawPTS

	return action, p.smoothed
}

// DuplicatesInserted returns the running count of Duplicate verdicts.
func (p *FramePacer) DuplicatesInserted() int64 { return p.dups }

// Drops returns the running count of Drop verdicts.
func (p *FramePacer) Drops() int64 { return p.drops }
