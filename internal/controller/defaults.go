package controller

import (
	"context"

	"github.com/rs/zerolog"

	"screenrec/internal/audio"
	"screenrec/internal/avsync"
	"screenrec/internal/capture"
	"screenrec/internal/config"
	"screenrec/internal/domain"
	"screenrec/internal/encoder"
	"screenrec/internal/mux"
	"screenrec/internal/ports"
	"screenrec/internal/power"
	"screenrec/internal/storage"
)

// DefaultEncoderFactory walks the real three-tier ffmpeg fallback chain
// (internal/encoder).
func DefaultEncoderFactory(ctx context.Context, profile domain.EncoderProfile, ffmpegPath string, log zerolog.Logger) (ports.VideoEncoder, error) {
	return encoder.Initialize(ctx, profile, ffmpegPath, log)
}

// DefaultMuxFactory starts the real ffmpeg-backed mux process
// (internal/mux).
func DefaultMuxFactory(ffmpegPath, stagingPath, finalPath string, cfg domain.MuxConfig) (ports.Muxer, error) {
	return mux.Initialize(ffmpegPath, stagingPath, finalPath, cfg)
}

// DefaultPowerProbe reports AC power via internal/power's D-Bus probe.
func DefaultPowerProbe() bool { return power.OnACPower() }

// NewDefault wires a Controller around the repo's default ffmpeg-backed
// capture and audio adapters, the real encoder/mux fallback chains, and
// the D-Bus power probe — the concrete graph cmd/screenrec runs.
func NewDefault(cfg config.Config, storageMgr *storage.Manager, events ports.EventSink, log zerolog.Logger) *Controller {
	sync := avsync.New()
	captureAdapter := capture.New(cfg.Encoder.FFmpegPath, cfg.Capture.Width, cfg.Capture.Height, cfg.Encoder.FPS, sync)
	audioAdapter := audio.New(cfg.Audio.Command, cfg.Audio.InputFormat, cfg.Audio.InputDevice, cfg.Audio.SampleRate, cfg.Audio.Channels)

	c := New(captureAdapter, audioAdapter, storageMgr, events, cfg, log, DefaultEncoderFactory, DefaultMuxFactory, DefaultPowerProbe)
	c.sync = sync
	return c
}
