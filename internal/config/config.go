// Package config resolves runtime configuration for the recorder from
// environment variables with sensible defaults — the same env-var-driven
// Load() shape the teacher uses. spec.md §6 places the persisted
// key/value settings file (fps/bitrate_bps/output_dir) out of this
// repo's scope, so environment variables stand in for the GUI shell's
// INI file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config stores the encoder, storage, and adapter settings the
// controller needs to start a recording session.
type Config struct {
	Encoder  EncoderConfig
	Storage  StorageConfig
	Audio    AudioConfig
	Capture  CaptureConfig
	LogLevel string
}

// EncoderConfig mirrors the spec.md §3 Encoder profile fields a
// settings file would otherwise override.
type EncoderConfig struct {
	FPS        int
	BitrateBps int
	ProfileTag string // "baseline" or "main"
	FFmpegPath string
}

// StorageConfig controls output directory resolution and the
// disk-space poller (spec.md §4.8).
type StorageConfig struct {
	OutputDir    string // empty means StorageManager.DefaultDirectory()
	PollInterval int    // seconds
	LowThreshold int64  // bytes
}

// AudioConfig configures the default ffmpeg-backed microphone adapter.
type AudioConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
}

// CaptureConfig configures the default ffmpeg-backed screen adapter.
type CaptureConfig struct {
	Width  int
	Height int
}

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	cfg := Config{
		Encoder: EncoderConfig{
			FPS:        envOrDefaultInt("SCREENREC_FPS", 30),
			BitrateBps: envOrDefaultInt("SCREENREC_BITRATE_BPS", 6_000_000),
			ProfileTag: envOrDefault("SCREENREC_PROFILE", "baseline"),
			FFmpegPath: envOrDefault("SCREENREC_FFMPEG", "ffmpeg"),
		},
		Storage: StorageConfig{
			OutputDir:    strings.TrimSpace(os.Getenv("SCREENREC_OUTPUT_DIR")),
			PollInterval: envOrDefaultInt("SCREENREC_DISK_POLL_SECONDS", 5),
			LowThreshold: envOrDefaultInt64("SCREENREC_DISK_LOW_BYTES", 500*1024*1024),
		},
		Audio: AudioConfig{
			Command:     envOrDefault("SCREENREC_FFMPEG", "ffmpeg"),
			InputFormat: envOrDefault("SCREENREC_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: envOrDefault("SCREENREC_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:  envOrDefaultInt("SCREENREC_AUDIO_SAMPLE_RATE", 48000),
			Channels:    envOrDefaultInt("SCREENREC_AUDIO_CHANNELS", 2),
		},
		Capture: CaptureConfig{
			Width:  envOrDefaultInt("SCREENREC_WIDTH", 1920),
			Height: envOrDefaultInt("SCREENREC_HEIGHT", 1080),
		},
		LogLevel: envOrDefault("SCREENREC_LOG_LEVEL", "info"),
	}

	if cfg.Encoder.FPS != 30 && cfg.Encoder.FPS != 60 {
		return Config{}, fmt.Errorf("config: SCREENREC_FPS must be 30 or 60, got %d", cfg.Encoder.FPS)
	}
	if cfg.Encoder.ProfileTag != "baseline" && cfg.Encoder.ProfileTag != "main" {
		return Config{}, fmt.Errorf("config: SCREENREC_PROFILE must be \"baseline\" or \"main\", got %q", cfg.Encoder.ProfileTag)
	}
	if cfg.Encoder.BitrateBps <= 0 {
		return Config{}, fmt.Errorf("config: SCREENREC_BITRATE_BPS must be positive, got %d", cfg.Encoder.BitrateBps)
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return Config{}, fmt.Errorf("config: SCREENREC_WIDTH/SCREENREC_HEIGHT must be positive")
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 2
	}
	if cfg.Storage.PollInterval <= 0 {
		cfg.Storage.PollInterval = 5
	}
	if cfg.Storage.LowThreshold <= 0 {
		cfg.Storage.LowThreshold = 500 * 1024 * 1024
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
