// Package ports defines the interfaces the controller depends on: capture
// and audio adapters, the encoder, the mux, and the event sink the
// control surface observes. Storage has no interface here; the
// controller uses *storage.Manager directly. Concrete adapters live in sibling packages;
// nothing in this package imports them.
package ports

import (
	"context"

	"screenrec/internal/domain"
)

// VideoQueue is the narrow push side of the bounded video ring the capture
// adapter writes into. Implemented by *ringqueue.BoundedQueue[domain.VideoFrame].
type VideoQueue interface {
	TryPush(frame domain.VideoFrame) bool
}

// AudioQueue is the narrow push side of the bounded audio ring the audio
// adapter writes into. Implemented by *ringqueue.BoundedQueue[domain.AudioPacket].
// PushDropOldest realizes the audio drop-oldest backpressure policy
// (spec §4.2), distinct from the video queue's drop-newest TryPush.
type AudioQueue interface {
	PushDropOldest(pkt domain.AudioPacket) (evicted bool)
}

// CaptureAdapter produces video frames for the session's video queue.
// spec §6: initialize/start/stop, device-lost callback, dimensions, counters.
type CaptureAdapter interface {
	Initialize(ctx context.Context, queue VideoQueue) error
	Start() error
	Stop() error
	SetDeviceLostCallback(fn func())
	Width() int
	Height() int
	FramesCaptured() int64
	FramesDropped() int64
}

// AudioAdapter produces audio packets for the session's audio queue.
// spec §6: initialize/start/stop, mute, format accessors, invalid-device callback.
type AudioAdapter interface {
	Initialize(ctx context.Context, queue AudioQueue) error
	Start() error
	Stop() error
	SetMuted(muted bool)
	SampleRate() int
	Channels() int
	BitsPerSample() int
	SetDeviceInvalidCallback(fn func())
}

// VideoEncoder accepts NV12 frames and a PTS, and emits compressed H.264
// access units. See internal/encoder for the three-tier fallback chain.
type VideoEncoder interface {
	Encode(frame domain.VideoFrame, pts int64) (*domain.EncodedSample, error)
	RequestKeyframe()
	Flush() ([]domain.EncodedSample, error)
	Tier() domain.EncoderTier
	Width() int
	Height() int
	Close() error
}

// Muxer writes a single MP4 file with one video and one audio stream under
// the atomic staging-then-rename protocol described in spec §4.7.
type Muxer interface {
	WriteVideo(sample domain.EncodedSample) error
	WriteAudio(pkt domain.AudioPacket) error
	Finalize() error
	BytesWritten() int64
	FinalPath() string
	Locked() bool
}

// EventSink emits backend state/events to the control surface.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionReason)
	TelemetryUpdated(snap domain.Snapshot)
	SessionError(code domain.ErrorCode, detail string)
}
