// Package domain holds the shared value types and enums of the recording
// pipeline: session state, telemetry, and the media sample types that move
// through the queues.
package domain

import "time"

// SessionState models the four-state recording lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStatePaused    SessionState = "paused"
	SessionStateStopping  SessionState = "stopping"
)

// SessionReason provides a structured reason for a state transition or status update.
type SessionReason string

const (
	SessionReasonRecordingStarted  SessionReason = "recording_started"
	SessionReasonRecordingPaused   SessionReason = "recording_paused"
	SessionReasonRecordingResumed  SessionReason = "recording_resumed"
	SessionReasonStopping          SessionReason = "stopping"
	SessionReasonFinalized         SessionReason = "finalized"
	SessionReasonFinalizeFailed    SessionReason = "finalize_failed"
	SessionReasonEncoderInitFailed SessionReason = "encoder_init_failed"
	SessionReasonDeviceLost        SessionReason = "device_lost"
	SessionReasonDiskCritical      SessionReason = "disk_critical"
)

// ErrorCode identifies non-fatal and fatal backend errors, one per row of
// the error handling table.
type ErrorCode string

const (
	ErrorCodeCaptureDeviceLost    ErrorCode = "capture_device_lost"
	ErrorCodeAudioDeviceInvalid   ErrorCode = "audio_device_invalid"
	ErrorCodeEncoderTierExhausted ErrorCode = "encoder_tier_unavailable"
	ErrorCodeEncodeSubmit         ErrorCode = "encode_submit"
	ErrorCodeMuxWrite             ErrorCode = "mux_write"
	ErrorCodeFinalizeFailed       ErrorCode = "finalize_failed"
	ErrorCodeDiskCritical         ErrorCode = "disk_critical"
	ErrorCodeFileLockFailed       ErrorCode = "file_lock_failed"
	ErrorCodeInvalidTransition    ErrorCode = "invalid_transition"
)

// Status summarizes the current runtime status for the control surface.
type Status struct {
	SessionID  string       `json:"sessionId,omitempty"`
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	Muted      bool         `json:"muted"`
	OutputPath string       `json:"outputPath,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// PaceAction is the FramePacer's verdict for a single captured frame.
type PaceAction int

const (
	PaceAccept PaceAction = iota
	PaceDuplicate
	PaceDrop
)

func (a PaceAction) String() string {
	switch a {
	case PaceAccept:
		return "accept"
	case PaceDuplicate:
		return "duplicate"
	case PaceDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// VideoFrame is an opaque image buffer plus its capture metadata. Pixel
// data is carried as an owned NV12 byte buffer rather than a GPU handle —
// see DESIGN.md's resolution of the shared-ownership open question.
type VideoFrame struct {
	Pixels    []byte
	Width     int
	Height    int
	PTSHns    int64
	Duplicate bool
}

// AudioPacket is a small buffer of interleaved PCM samples.
type AudioPacket struct {
	Samples    []byte
	FrameCount int
	PTSHns     int64
	Silence    bool
	SampleRate int
	Channels   int
}

// Duration returns the packet's playback duration in the 100ns media timebase.
func (p AudioPacket) Duration() int64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return int64(p.FrameCount) * 10_000_000 / int64(p.SampleRate)
}

// EncoderProfile configures the video encoder and, downstream, the mux's
// declared video stream.
type EncoderProfile struct {
	Width      int
	Height     int
	FPS        int
	BitrateBps int
	LowLatency bool
	BFrames    int
	ProfileTag string // "baseline" or "main"
}

// GOPFrames returns the configured group-of-pictures length in frames (2*fps).
func (p EncoderProfile) GOPFrames() int {
	if p.FPS <= 0 {
		return 0
	}
	return p.FPS * 2
}

// EncodedSample is a compressed H.264 access unit emitted by the encoder.
type EncodedSample struct {
	Data      []byte
	PTSHns    int64
	Keyframe  bool
	Duplicate bool
}

// EncoderTier identifies which fallback tier the video encoder committed to.
type EncoderTier string

const (
	EncoderTierHardware    EncoderTier = "hardware"
	EncoderTierSoftware    EncoderTier = "software"
	EncoderTierSoftware720 EncoderTier = "software_720p30"
)

// Telemetry holds the atomically-updated counters and gauges described in
// spec §3 ("read under no lock; writes are per-event").
type Telemetry struct {
	FramesCaptured  int64
	FramesEncoded   int64
	FramesDropped   int64
	FramesDuplicate int64
	AudioMuxed      int64
	QueueDepth      int64
	EncoderTier     EncoderTier
	OnACPower       bool
}

// MuxConfig configures the mux's declared video and audio streams.
type MuxConfig struct {
	VideoWidth         int
	VideoHeight        int
	FPSNum             int
	FPSDen             int
	VideoBitrateBps    int
	AudioSampleRate    int
	AudioChannels      int
	AudioBitrateBps    int
	AudioBitsPerSample int
}

// Snapshot is an immutable read of Telemetry for display purposes.
type Snapshot struct {
	FramesCaptured  int64       `json:"framesCaptured"`
	FramesEncoded   int64       `json:"framesEncoded"`
	FramesDropped   int64       `json:"framesDropped"`
	FramesDuplicate int64       `json:"framesDuplicate"`
	AudioMuxed      int64       `json:"audioMuxed"`
	QueueDepth      int64       `json:"queueDepth"`
	EncoderTier     EncoderTier `json:"encoderTier"`
	OnACPower       bool        `json:"onAcPower"`
	CapturedAt      time.Time   `json:"capturedAt"`
}
