package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"screenrec/internal/config"
	"screenrec/internal/domain"
	"screenrec/internal/ports"
	"screenrec/internal/storage"
)

// fakeCapture, fakeAudio, fakeEncoder, fakeMux, fakeEvents substitute for
// every ffmpeg/D-Bus-backed adapter so the controller's own orchestration
// (the §4.9 start/stop sequence, the encode hot loop, device-lost and
// low-disk reactions) can be exercised without a real subprocess.

type fakeCapture struct {
	mu         sync.Mutex
	width      int
	height     int
	captured   int64
	dropped    int64
	deviceLost func()
	initErr    error
	queue      ports.VideoQueue
}

func (f *fakeCapture) Initialize(ctx context.Context, queue ports.VideoQueue) error {
	f.queue = queue
	return f.initErr
}
func (f *fakeCapture) Start() error { return nil }
func (f *fakeCapture) Stop() error  { return nil }
func (f *fakeCapture) SetDeviceLostCallback(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceLost = fn
}
func (f *fakeCapture) Width() int            { return f.width }
func (f *fakeCapture) Height() int           { return f.height }
func (f *fakeCapture) FramesCaptured() int64 { return f.captured }
func (f *fakeCapture) FramesDropped() int64  { return f.dropped }

func (f *fakeCapture) push(frame domain.VideoFrame) {
	f.queue.TryPush(frame)
	f.captured++
}

func (f *fakeCapture) fireDeviceLost() {
	f.mu.Lock()
	fn := f.deviceLost
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeAudio struct {
	mu            sync.Mutex
	sampleRate    int
	channels      int
	bits          int
	initErr       error
	deviceInvalid func()
}

func (f *fakeAudio) Initialize(ctx context.Context, queue ports.AudioQueue) error { return f.initErr }
func (f *fakeAudio) Start() error                                                 { return nil }
func (f *fakeAudio) Stop() error                                                  { return nil }
func (f *fakeAudio) SetMuted(muted bool)                                          {}
func (f *fakeAudio) SampleRate() int                                              { return f.sampleRate }
func (f *fakeAudio) Channels() int                                                { return f.channels }
func (f *fakeAudio) BitsPerSample() int                                           { return f.bits }
func (f *fakeAudio) SetDeviceInvalidCallback(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceInvalid = fn
}

type fakeEncoder struct {
	mu        sync.Mutex
	tier      domain.EncoderTier
	width     int
	height    int
	closed    bool
	keyframes int
	encoded   int
}

func (e *fakeEncoder) Encode(frame domain.VideoFrame, pts int64) (*domain.EncodedSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.encoded++
	return &domain.EncodedSample{Data: []byte{0xAA}, PTSHns: pts}, nil
}
func (e *fakeEncoder) RequestKeyframe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyframes++
}
func (e *fakeEncoder) Flush() ([]domain.EncodedSample, error) { return nil, nil }
func (e *fakeEncoder) Tier() domain.EncoderTier                { return e.tier }
func (e *fakeEncoder) Width() int                              { return e.width }
func (e *fakeEncoder) Height() int                             { return e.height }
func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type fakeMux struct {
	mu          sync.Mutex
	videoWrites int
	audioWrites int
	finalized   bool
	finalizeErr error
	finalPath   string
	locked      bool
}

func (m *fakeMux) WriteVideo(sample domain.EncodedSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoWrites++
	return nil
}
func (m *fakeMux) WriteAudio(pkt domain.AudioPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioWrites++
	return nil
}
func (m *fakeMux) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
	return m.finalizeErr
}
func (m *fakeMux) BytesWritten() int64 { return 0 }
func (m *fakeMux) FinalPath() string   { return m.finalPath }
func (m *fakeMux) Locked() bool        { return m.locked }

func (m *fakeMux) wasFinalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

type fakeEvents struct {
	mu     sync.Mutex
	states []domain.SessionState
	errors []domain.ErrorCode
}

func (e *fakeEvents) SessionStateChanged(state domain.SessionState, reason domain.SessionReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, state)
}
func (e *fakeEvents) TelemetryUpdated(snap domain.Snapshot) {}
func (e *fakeEvents) SessionError(code domain.ErrorCode, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, code)
}

func (e *fakeEvents) lastStates() []domain.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.SessionState(nil), e.states...)
}

func (e *fakeEvents) errorCodes() []domain.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ErrorCode(nil), e.errors...)
}

func testStorage(t *testing.T) *storage.Manager {
	t.Helper()
	m := storage.New()
	if err := m.SetOutputDirectory(t.TempDir()); err != nil {
		t.Fatalf("SetOutputDirectory: %v", err)
	}
	return m
}

func testConfig() config.Config {
	return config.Config{
		Encoder: config.EncoderConfig{FPS: 30, BitrateBps: 2_000_000, ProfileTag: "baseline", FFmpegPath: "ffmpeg"},
		Storage: config.StorageConfig{PollInterval: 3600, LowThreshold: 1}, // poller effectively inert unless a test shrinks it
	}
}

func buildController(t *testing.T, cap *fakeCapture, aud *fakeAudio, enc *fakeEncoder, mx *fakeMux, events *fakeEvents) *Controller {
	t.Helper()
	encoderFactory := func(ctx context.Context, profile domain.EncoderProfile, ffmpegPath string, log zerolog.Logger) (ports.VideoEncoder, error) {
		enc.width, enc.height = profile.Width, profile.Height
		if enc.tier == "" {
			enc.tier = domain.EncoderTierSoftware
		}
		return enc, nil
	}
	muxFactory := func(ffmpegPath, stagingPath, finalPath string, cfg domain.MuxConfig) (ports.Muxer, error) {
		mx.finalPath = finalPath
		return mx, nil
	}
	powerProbe := func() bool { return true }

	return New(cap, aud, testStorage(t), events, testConfig(), zerolog.Nop(), encoderFactory, muxFactory, powerProbe)
}

func newFixture(t *testing.T) (*Controller, *fakeCapture, *fakeAudio, *fakeEncoder, *fakeMux, *fakeEvents) {
	t.Helper()
	cap := &fakeCapture{width: 1920, height: 1080}
	aud := &fakeAudio{sampleRate: 48000, channels: 2, bits: 16}
	enc := &fakeEncoder{}
	mx := &fakeMux{locked: true}
	events := &fakeEvents{}
	c := buildController(t, cap, aud, enc, mx, events)
	return c, cap, aud, enc, mx, events
}

// S1/§4.9: Start transitions Idle->Recording, wires the encoder/mux from
// the injected factories, and begins the encode hot loop.
func TestStartTransitionsToRecordingAndWiresEncoder(t *testing.T) {
	c, _, _, enc, mx, events := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if c.State() != domain.SessionStateRecording {
		t.Fatalf("expected state recording, got %s", c.State())
	}
	if enc.width == 0 || enc.height == 0 {
		t.Fatal("expected the encoder factory to be invoked with the resolved profile")
	}
	if mx.finalPath == "" {
		t.Fatal("expected the mux factory to be invoked with a final path")
	}
	if c.SessionID() == "" {
		t.Fatal("expected a session id to be minted")
	}
	states := events.lastStates()
	if len(states) == 0 || states[0] != domain.SessionStateRecording {
		t.Fatalf("expected a SessionStateChanged(recording) event, got %v", states)
	}
}

// §7: a failed flock is non-fatal — the session still reaches Recording,
// but a warning-level SessionError reports the weaker write protection.
func TestStartWarnsWhenMuxLockNotHeld(t *testing.T) {
	cap := &fakeCapture{width: 1920, height: 1080}
	aud := &fakeAudio{sampleRate: 48000, channels: 2, bits: 16}
	enc := &fakeEncoder{}
	mx := &fakeMux{locked: false}
	events := &fakeEvents{}
	c := buildController(t, cap, aud, enc, mx, events)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if c.State() != domain.SessionStateRecording {
		t.Fatalf("expected state recording despite the unheld lock, got %s", c.State())
	}
	codes := events.errorCodes()
	found := false
	for _, code := range codes {
		if code == domain.ErrorCodeFileLockFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a %s SessionError, got %v", domain.ErrorCodeFileLockFailed, codes)
	}
}

// A second Start call while already recording is rejected (invalid
// transition), matching the state machine's validated transition table.
func TestStartRejectedWhileAlreadyRecording(t *testing.T) {
	c, _, _, _, _, _ := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected a second Start to be rejected")
	}
}

// §4.9 Stop/I5: Stop drains the encode loop, flushes the encoder into the
// mux, and finalizes exactly once, ending in Idle.
func TestStopFlushesAndFinalizes(t *testing.T) {
	c, cap, _, enc, mx, _ := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		cap.push(domain.VideoFrame{Pixels: []byte{1}, Width: 1920, Height: 1080, PTSHns: int64(i) * 333_333})
	}

	deadline := time.Now().Add(2 * time.Second)
	for enc.encoded == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if c.State() != domain.SessionStateIdle {
		t.Fatalf("expected state idle after stop, got %s", c.State())
	}
	if !mx.wasFinalized() {
		t.Fatal("expected the mux to be finalized")
	}
	if !enc.closed {
		t.Fatal("expected the encoder to be closed")
	}
	if enc.encoded == 0 {
		t.Fatal("expected at least one frame to have been encoded")
	}
}

// Stop is idempotent with respect to the underlying mux: a second Stop
// call is rejected by the state machine rather than re-finalizing.
func TestStopRejectedWhenAlreadyIdle(t *testing.T) {
	c, _, _, _, mx, _ := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	finalizedBefore := mx.wasFinalized()
	if err := c.Stop(context.Background()); err == nil {
		t.Fatal("expected a second Stop to be rejected")
	}
	if mx.wasFinalized() != finalizedBefore {
		t.Fatal("expected no additional finalize on a rejected Stop")
	}
}

// Pause->Resume round trip requests a keyframe on resume (spec: an
// independently decodable post-pause segment).
func TestPauseResumeRequestsKeyframe(t *testing.T) {
	c, _, _, enc, _, _ := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if c.State() != domain.SessionStatePaused {
		t.Fatalf("expected state paused, got %s", c.State())
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if c.State() != domain.SessionStateRecording {
		t.Fatalf("expected state recording after resume, got %s", c.State())
	}

	enc.mu.Lock()
	keyframes := enc.keyframes
	enc.mu.Unlock()
	if keyframes != 1 {
		t.Fatalf("expected exactly one keyframe request on resume, got %d", keyframes)
	}
}

// handleDeviceLost fires at most once and drives a synchronous Stop,
// reaching Idle without deadlocking despite running on the capture
// adapter's own callback goroutine (spec §9 resolution).
func TestDeviceLostTriggersStopAndFinalize(t *testing.T) {
	c, cap, _, _, mx, events := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	cap.fireDeviceLost()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != domain.SessionStateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != domain.SessionStateIdle {
		t.Fatalf("expected device loss to drive the session to idle, got %s", c.State())
	}
	if !mx.wasFinalized() {
		t.Fatal("expected finalize to run after device loss")
	}

	found := false
	for _, code := range events.errorCodes() {
		if code == domain.ErrorCodeCaptureDeviceLost {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a capture_device_lost session error")
	}
}

// Audio device invalidation is non-fatal: recording continues and the
// session still finalizes cleanly on Stop.
func TestAudioDeviceInvalidIsNonFatal(t *testing.T) {
	c, _, aud, _, mx, events := newFixture(t)
	aud.initErr = errors.New("no such device")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != domain.SessionStateRecording {
		t.Fatalf("expected recording to proceed without a microphone, got %s", c.State())
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !mx.wasFinalized() {
		t.Fatal("expected finalize to still run")
	}

	found := false
	for _, code := range events.errorCodes() {
		if code == domain.ErrorCodeAudioDeviceInvalid {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an audio_device_invalid session error")
	}
}

// Low-disk signals route through the message-passing drain goroutine
// rather than calling Stop re-entrantly from the poller's own goroutine.
func TestLowDiskSignalDrivesStop(t *testing.T) {
	c, _, _, _, mx, events := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.signalLowDisk()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != domain.SessionStateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != domain.SessionStateIdle {
		t.Fatalf("expected low disk signal to drive the session to idle, got %s", c.State())
	}
	if !mx.wasFinalized() {
		t.Fatal("expected finalize to run after a low-disk stop")
	}

	found := false
	for _, code := range events.errorCodes() {
		if code == domain.ErrorCodeDiskCritical {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a disk_critical session error")
	}
}

// A low-disk signal received while idle is a no-op: drainLowDisk must
// not attempt to Stop a session that was never started.
func TestLowDiskSignalWhileIdleIsNoop(t *testing.T) {
	c, _, _, _, _, _ := newFixture(t)
	c.signalLowDisk()
	time.Sleep(50 * time.Millisecond)
	if c.State() != domain.SessionStateIdle {
		t.Fatalf("expected state to remain idle, got %s", c.State())
	}
}

// SetMuted forwards to the audio adapter without causing a state
// transition.
func TestSetMutedDoesNotTransitionState(t *testing.T) {
	c, _, _, _, _, _ := newFixture(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	c.SetMuted(true)
	if !c.IsMuted() {
		t.Fatal("expected IsMuted to report true")
	}
	if c.State() != domain.SessionStateRecording {
		t.Fatalf("expected mute to leave state unchanged, got %s", c.State())
	}
}

// SetEncoderProfile's override is merged with config defaults at the
// next Start.
func TestSetEncoderProfileOverridesBitrate(t *testing.T) {
	c, _, _, _, _, _ := newFixture(t)
	c.SetEncoderProfile(domain.EncoderProfile{BitrateBps: 9_000_000})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	if got := c.resolveProfile(true).BitrateBps; got != 9_000_000 {
		t.Fatalf("resolved bitrate = %d, want 9000000", got)
	}
}

// TelemetrySnapshot aggregates counters without requiring the caller to
// hold any lock.
func TestTelemetrySnapshotReflectsEncodedFrames(t *testing.T) {
	c, cap, _, enc, _, _ := newFixture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	cap.push(domain.VideoFrame{Pixels: []byte{1}, Width: 1920, Height: 1080, PTSHns: 0})

	deadline := time.Now().Add(2 * time.Second)
	for enc.encoded == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	snap := c.TelemetrySnapshot()
	if snap.FramesEncoded == 0 {
		t.Fatal("expected TelemetrySnapshot to reflect at least one encoded frame")
	}
	if snap.EncoderTier != domain.EncoderTierSoftware {
		t.Fatalf("expected encoder tier software, got %s", snap.EncoderTier)
	}
}
