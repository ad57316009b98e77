// Package controller implements the SessionController component (C9):
// it wires the clock, sync manager, pacer, state machine, encoder, mux,
// and storage manager together, runs the encode hot loop, and mediates
// the external Start/Stop/Pause/Resume/Mute control surface plus the
// capture/audio adapters' device callbacks. Grounded in the teacher's
// internal/usecase.SessionController (same owns-everything, one-struct
// shape), generalized from a transcription session to a media pipeline.
package controller

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"screenrec/internal/avsync"
	"screenrec/internal/config"
	"screenrec/internal/domain"
	"screenrec/internal/pacer"
	"screenrec/internal/ports"
	"screenrec/internal/power"
	"screenrec/internal/ringqueue"
	"screenrec/internal/session"
	"screenrec/internal/storage"
)

const encodeIdleSleep = time.Millisecond

// EncoderFactory constructs the committed VideoEncoder for a session,
// walking the fallback chain described in spec §4.6.
type EncoderFactory func(ctx context.Context, profile domain.EncoderProfile, ffmpegPath string, log zerolog.Logger) (ports.VideoEncoder, error)

// MuxFactory constructs the Muxer for a session's staging/final paths.
type MuxFactory func(ffmpegPath, stagingPath, finalPath string, cfg domain.MuxConfig) (ports.Muxer, error)

// PowerProbe reports whether the host is currently on AC power (or the
// state is unknown, which the power clamp treats as AC).
type PowerProbe func() bool

// Controller owns C3-C8, the two bounded queues, the encode task, and
// the capture/audio adapters. Exactly one recording session is active
// at a time; Controller itself is safe for concurrent method calls.
type Controller struct {
	capture ports.CaptureAdapter
	audio   ports.AudioAdapter
	storage *storage.Manager
	events  ports.EventSink
	cfg     config.Config
	log     zerolog.Logger

	newEncoder EncoderFactory
	newMux     MuxFactory
	onACPower  PowerProbe

	machine *session.Machine
	sync    *avsync.SyncManager
	pace    *pacer.FramePacer

	videoQueue *ringqueue.BoundedQueue[domain.VideoFrame]
	audioQueue *ringqueue.BoundedQueue[domain.AudioPacket]

	mu             sync.Mutex
	enc            ports.VideoEncoder
	mux            ports.Muxer
	sessionID      string
	stagingPath    string
	finalPath      string
	profileOverride *domain.EncoderProfile
	pendingReason  domain.SessionReason

	muted         atomic.Bool
	encodeRunning atomic.Bool
	encodeDone    chan struct{}

	framesEncoded atomic.Int64
	framesDropped atomic.Int64
	audioMuxed    atomic.Int64
	encoderTier   atomic.Value // domain.EncoderTier
	onAC          atomic.Bool

	lowDiskCh chan struct{}
}

// New constructs a Controller around its default collaborators.
// capture and audio are the adapters bound to this host's screen and
// microphone. encoderFactory and muxFactory must be non-nil; a nil
// powerProbe makes Start treat the host as on AC power (tests
// substitute fakes to avoid shelling out to ffmpeg/D-Bus).
func New(capture ports.CaptureAdapter, audio ports.AudioAdapter, storageMgr *storage.Manager, events ports.EventSink, cfg config.Config, log zerolog.Logger, encoderFactory EncoderFactory, muxFactory MuxFactory, powerProbe PowerProbe) *Controller {
	c := &Controller{
		capture:    capture,
		audio:      audio,
		storage:    storageMgr,
		events:     events,
		cfg:        cfg,
		log:        log,
		newEncoder: encoderFactory,
		newMux:     muxFactory,
		onACPower:  powerProbe,
		machine:    session.New(),
		sync:       avsync.New(),
		pace:       pacer.New(cfg.Encoder.FPS),
		videoQueue: ringqueue.New[domain.VideoFrame](ringqueue.VideoCapacity),
		audioQueue: ringqueue.New[domain.AudioPacket](ringqueue.AudioCapacity),
		lowDiskCh:  make(chan struct{}, 1),
	}
	c.encoderTier.Store(domain.EncoderTier(""))
	c.machine.SetOnChange(func(old, new session.State) {
		c.events.SessionStateChanged(mapState(new), c.takePendingReason())
	})
	go c.drainLowDisk()
	return c
}

func mapState(s session.State) domain.SessionState {
	switch s {
	case session.Recording:
		return domain.SessionStateRecording
	case session.Paused:
		return domain.SessionStatePaused
	case session.Stopping:
		return domain.SessionStateStopping
	default:
		return domain.SessionStateIdle
	}
}

func (c *Controller) setPendingReason(reason domain.SessionReason) {
	c.mu.Lock()
	c.pendingReason = reason
	c.mu.Unlock()
}

func (c *Controller) takePendingReason() domain.SessionReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	reason := c.pendingReason
	c.pendingReason = ""
	return reason
}

// SetEncoderProfile records a user override merged with defaults at the
// next Start (spec §6 control surface operation).
func (c *Controller) SetEncoderProfile(profile domain.EncoderProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := profile
	c.profileOverride = &p
}

// State returns the current session state.
func (c *Controller) State() domain.SessionState {
	return mapState(c.machine.State())
}

// IsMuted reports the current mute state.
func (c *Controller) IsMuted() bool { return c.muted.Load() }

// SessionID returns the uuid minted for the most recently started
// session, or "" if none has started yet.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status aggregates the control surface's read-only accessors into a
// single snapshot for display.
func (c *Controller) Status() domain.Status {
	state := c.State()
	return domain.Status{
		SessionID:  c.SessionID(),
		State:      state,
		Active:     state != domain.SessionStateIdle,
		Muted:      c.IsMuted(),
		OutputPath: c.OutputPath(),
	}
}

// OutputPath returns the final (post-finalize) path of the most recently
// started session, whether or not it has finished recording yet.
func (c *Controller) OutputPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalPath
}

// TelemetrySnapshot returns an immutable read of the running counters
// (spec §3: "read under no lock; writes are per-event").
func (c *Controller) TelemetrySnapshot() domain.Snapshot {
	tier, _ := c.encoderTier.Load().(domain.EncoderTier)
	return domain.Snapshot{
		FramesCaptured:  c.capture.FramesCaptured(),
		FramesEncoded:   c.framesEncoded.Load(),
		FramesDropped:   c.framesDropped.Load() + c.capture.FramesDropped(),
		FramesDuplicate: c.pace.DuplicatesInserted(),
		AudioMuxed:      c.audioMuxed.Load(),
		QueueDepth:      int64(c.videoQueue.Size()),
		EncoderTier:     tier,
		OnACPower:       c.onAC.Load(),
		CapturedAt:      time.Now(),
	}
}

// Start attempts the Idle->Recording transition and, on success, runs
// through spec §4.9's ten-step startup sequence.
func (c *Controller) Start(ctx context.Context) error {
	if !c.machine.Transition(session.Start) {
		return fmt.Errorf("controller: start rejected in state %s", c.State())
	}

	c.mu.Lock()
	c.sessionID = uuid.New().String()
	c.mu.Unlock()
	c.setPendingReason(domain.SessionReasonRecordingStarted)

	stagingPath := c.storage.GenerateFilename(time.Now())
	finalPath := storage.PartialToFinal(stagingPath)

	c.sync.Start()
	c.pace.Initialize(c.cfg.Encoder.FPS)

	if err := c.capture.Initialize(ctx, c.videoQueue); err != nil {
		c.abortStart(fmt.Errorf("controller: capture init: %w", err))
		return err
	}
	audioReady := true
	if err := c.audio.Initialize(ctx, c.audioQueue); err != nil {
		audioReady = false
		c.log.Warn().Err(err).Msg("audio adapter init failed; session continues without microphone input")
		c.events.SessionError(domain.ErrorCodeAudioDeviceInvalid, err.Error())
		go c.feedSilenceUntilStopped()
	}

	onAC := true
	if c.onACPower != nil {
		onAC = c.onACPower()
	}
	c.onAC.Store(onAC)

	profile := c.resolveProfile(onAC)

	enc, err := c.newEncoder(ctx, profile, c.cfg.Encoder.FFmpegPath, c.log)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeEncoderTierExhausted, err.Error())
		c.abortStart(err)
		return err
	}
	c.encoderTier.Store(enc.Tier())

	muxCfg := domain.MuxConfig{
		VideoWidth:         enc.Width(),
		VideoHeight:        enc.Height(),
		FPSNum:             profile.FPS,
		FPSDen:             1,
		VideoBitrateBps:    profile.BitrateBps,
		AudioSampleRate:    c.audio.SampleRate(),
		AudioChannels:      c.audio.Channels(),
		AudioBitrateBps:    160_000,
		AudioBitsPerSample: c.audio.BitsPerSample(),
	}
	mx, err := c.newMux(c.cfg.Encoder.FFmpegPath, stagingPath, finalPath, muxCfg)
	if err != nil {
		_ = enc.Close()
		c.events.SessionError(domain.ErrorCodeFinalizeFailed, err.Error())
		c.abortStart(err)
		return err
	}

	c.mu.Lock()
	c.enc = enc
	c.mux = mx
	c.stagingPath = stagingPath
	c.finalPath = finalPath
	c.mu.Unlock()

	if !mx.Locked() {
		c.log.Warn().Str("staging", stagingPath).Msg("exclusive write lock not held; another writer could touch the staging file")
		c.events.SessionError(domain.ErrorCodeFileLockFailed, "exclusive write lock not held; weaker external-writer protection")
	}

	c.framesEncoded.Store(0)
	c.framesDropped.Store(0)
	c.audioMuxed.Store(0)

	c.capture.SetDeviceLostCallback(c.handleDeviceLost)
	if audioReady {
		c.audio.SetDeviceInvalidCallback(c.handleAudioDeviceInvalid)
	}

	c.encodeRunning.Store(true)
	c.encodeDone = make(chan struct{})
	go c.runEncodeLoop()

	if err := c.capture.Start(); err != nil {
		c.log.Error().Err(err).Msg("capture adapter start failed")
	}
	if audioReady {
		if err := c.audio.Start(); err != nil {
			c.log.Warn().Err(err).Msg("audio adapter start failed")
		}
	}
	c.storage.StartPolling(time.Duration(c.cfg.Storage.PollInterval)*time.Second, c.cfg.Storage.LowThreshold, c.signalLowDisk)

	return nil
}

// abortStart transitions a failed Start straight through to Finalized
// (spec §4.9 Start step 6: "on failure, transition Stop then Finalized
// and return failure") after Start's Idle→Recording transition, before
// any frame has been encoded.
func (c *Controller) abortStart(err error) {
	c.setPendingReason(domain.SessionReasonEncoderInitFailed)
	c.machine.Transition(session.Stop)
	c.setPendingReason(domain.SessionReasonFinalizeFailed)
	c.machine.Transition(session.Finalized)
	c.log.Error().Err(err).Msg("session start aborted")
}

// resolveProfile merges the user override (if any) with config
// defaults, sized to the capture adapter's committed dimensions, then
// applies the §4.9.1 power clamp.
func (c *Controller) resolveProfile(onAC bool) domain.EncoderProfile {
	c.mu.Lock()
	override := c.profileOverride
	c.mu.Unlock()

	profile := domain.EncoderProfile{
		Width:      c.capture.Width(),
		Height:     c.capture.Height(),
		FPS:        c.cfg.Encoder.FPS,
		BitrateBps: c.cfg.Encoder.BitrateBps,
		LowLatency: true,
		BFrames:    0,
		ProfileTag: c.cfg.Encoder.ProfileTag,
	}
	if override != nil {
		if override.FPS > 0 {
			profile.FPS = override.FPS
		}
		if override.BitrateBps > 0 {
			profile.BitrateBps = override.BitrateBps
		}
		if override.ProfileTag != "" {
			profile.ProfileTag = override.ProfileTag
		}
	}

	profile.FPS = power.ClampFPS(profile.FPS, onAC)
	profile.BitrateBps = power.ClampBitrate(profile.BitrateBps, onAC)
	return profile
}

// Pause transitions Recording->Paused, freezes the PTS timeline, and
// re-bootstraps the pacer so the pause gap is not misread as a missed
// frame once Resume re-anchors it.
func (c *Controller) Pause() error {
	c.setPendingReason(domain.SessionReasonRecordingPaused)
	if !c.machine.Transition(session.Pause) {
		return fmt.Errorf("controller: pause rejected in state %s", c.State())
	}
	c.sync.Pause()
	c.pace.Reset()
	return nil
}

// Resume transitions Paused->Recording, resumes the PTS timeline, and
// requests an IDR so the post-pause segment is independently decodable.
func (c *Controller) Resume() error {
	c.setPendingReason(domain.SessionReasonRecordingResumed)
	if !c.machine.Transition(session.Resume) {
		return fmt.Errorf("controller: resume rejected in state %s", c.State())
	}
	c.sync.Resume()
	c.pace.Reset()

	c.mu.Lock()
	enc := c.enc
	c.mu.Unlock()
	if enc != nil {
		enc.RequestKeyframe()
	}
	return nil
}

// SetMuted forwards the mute bit to the audio adapter; no state
// transition occurs (spec §4.9 Mute).
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
	c.audio.SetMuted(muted)
}

// Stop attempts the Recording/Paused->Stopping transition, drains and
// joins the encode task, flushes the encoder into the mux, finalizes
// the output file, and transitions Stopping->Finalized (spec §4.9 Stop,
// invariant I5).
func (c *Controller) Stop(ctx context.Context) error {
	c.setPendingReason(domain.SessionReasonStopping)
	if !c.machine.Transition(session.Stop) {
		return fmt.Errorf("controller: stop rejected in state %s", c.State())
	}

	c.storage.StopPolling()
	_ = c.capture.Stop()
	_ = c.audio.Stop()

	c.encodeRunning.Store(false)
	if c.encodeDone != nil {
		<-c.encodeDone
	}

	c.mu.Lock()
	enc := c.enc
	mx := c.mux
	c.mu.Unlock()

	if enc != nil {
		samples, err := enc.Flush()
		if err != nil {
			c.log.Warn().Err(err).Msg("encoder flush error")
		}
		for _, sample := range samples {
			if mx != nil {
				if err := mx.WriteVideo(sample); err != nil {
					c.events.SessionError(domain.ErrorCodeMuxWrite, err.Error())
				} else {
					c.framesEncoded.Add(1)
				}
			}
		}
		_ = enc.Close()
	}

	var finalizeErr error
	if mx != nil {
		finalizeErr = mx.Finalize()
	}

	if finalizeErr != nil {
		c.events.SessionError(domain.ErrorCodeFinalizeFailed, finalizeErr.Error())
		c.setPendingReason(domain.SessionReasonFinalizeFailed)
	} else {
		c.setPendingReason(domain.SessionReasonFinalized)
	}
	c.machine.Transition(session.Finalized)

	return finalizeErr
}

// handleDeviceLost is invoked at most once by the capture adapter on
// unrecoverable device loss. It runs on the capture adapter's own
// goroutine; Stop (and therefore Finalize) executes synchronously on
// that same goroutine, per the documented resolution of spec §9's
// device-lost re-entrancy open question.
func (c *Controller) handleDeviceLost() {
	c.events.SessionError(domain.ErrorCodeCaptureDeviceLost, "capture device lost")
	if err := c.Stop(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("stop-on-device-lost failed")
	}
}

// handleAudioDeviceInvalid is non-fatal: the recording continues, now
// backed by the silence fallback, per spec §7's "continue with silence"
// local-recovery policy.
func (c *Controller) handleAudioDeviceInvalid() {
	c.events.SessionError(domain.ErrorCodeAudioDeviceInvalid, "audio device invalidated")
	go c.feedSilenceUntilStopped()
}

// feedSilenceUntilStopped pushes zeroed packets at the adapter's
// configured cadence so the mux's audio pipe never starves when the
// real microphone adapter is absent or has failed — the pragmatic
// realization of spec §6's "the mux may degrade to video-only per
// policy" alternative, chosen here because it needs no mux
// reconfiguration mid-session.
func (c *Controller) feedSilenceUntilStopped() {
	sampleRate := c.audio.SampleRate()
	channels := c.audio.Channels()
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 2
	}
	const frameCount = 960 // 20ms at 48kHz
	packetBytes := frameCount * 2 * channels
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var pts int64
	for c.encodeRunning.Load() || c.machine.State() != session.Idle {
		if c.machine.State() == session.Idle {
			return
		}
		<-ticker.C
		pkt := domain.AudioPacket{
			Samples:    make([]byte, packetBytes),
			FrameCount: frameCount,
			PTSHns:     pts,
			Silence:    true,
			SampleRate: sampleRate,
			Channels:   channels,
		}
		pts += pkt.Duration()
		c.audioQueue.PushDropOldest(pkt)
	}
}

// signalLowDisk is the storage poller's callback. It never calls Stop
// directly from the poller's own goroutine; instead it posts onto a
// buffered channel that drainLowDisk (running on its own goroutine)
// drains and reacts to, per spec §9's "message-passing design ... is
// cleaner and equally correct" resolution of the poller re-entrancy.
func (c *Controller) signalLowDisk() {
	select {
	case c.lowDiskCh <- struct{}{}:
	default:
	}
}

func (c *Controller) drainLowDisk() {
	for range c.lowDiskCh {
		if c.machine.IsIdle() {
			continue
		}
		c.events.SessionError(domain.ErrorCodeDiskCritical, "⚠ Disk space critically low")
		c.setPendingReason(domain.SessionReasonDiskCritical)
		if err := c.Stop(context.Background()); err != nil {
			c.log.Error().Err(err).Msg("stop-on-low-disk failed")
		}
	}
}

// runEncodeLoop is the hot loop described in spec §4.9.2. It runs while
// encodeRunning is set or the video queue still holds frames, so Stop's
// join always drains whatever the producers already queued.
func (c *Controller) runEncodeLoop() {
	defer close(c.encodeDone)

	runtime.LockOSThread()
	raiseEncodePriority()

	var cached *domain.VideoFrame
	var cachedPTS int64

	for c.encodeRunning.Load() || !c.videoQueue.Empty() {
		drainedVideo := false

		if frame, ok := c.videoQueue.TryPop(); ok {
			drainedVideo = true
			if c.machine.State() != session.Paused {
				action, outPTS := c.pace.Pace(frame.PTSHns, false)
				switch action {
				case domain.PaceDrop:
					c.framesDropped.Add(1)
				case domain.PaceDuplicate:
					if cached != nil {
						midpoint := (cachedPTS + outPTS) / 2
						c.encodeAndWrite(*cached, midpoint)
					}
					fallthrough
				default:
					cp := frame
					cached = &cp
					cachedPTS = outPTS
					c.encodeAndWrite(frame, outPTS)
				}
			}
		}

		for {
			pkt, ok := c.audioQueue.TryPop()
			if !ok {
				break
			}
			if c.machine.State() == session.Paused {
				continue
			}
			c.mu.Lock()
			mx := c.mux
			c.mu.Unlock()
			if mx == nil {
				continue
			}
			if err := mx.WriteAudio(pkt); err != nil {
				c.events.SessionError(domain.ErrorCodeMuxWrite, err.Error())
				continue
			}
			c.audioMuxed.Add(1)
		}

		if !drainedVideo {
			time.Sleep(encodeIdleSleep)
		}
	}
}

func (c *Controller) encodeAndWrite(frame domain.VideoFrame, pts int64) {
	c.mu.Lock()
	enc := c.enc
	mx := c.mux
	c.mu.Unlock()
	if enc == nil {
		return
	}
	sample, err := enc.Encode(frame, pts)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeEncodeSubmit, err.Error())
		c.framesDropped.Add(1)
		return
	}
	if sample == nil {
		return
	}
	c.framesEncoded.Add(1)
	if mx == nil {
		return
	}
	if err := mx.WriteVideo(*sample); err != nil {
		c.events.SessionError(domain.ErrorCodeMuxWrite, err.Error())
	}
}
