// Package mux implements the atomic staging-then-rename MP4 finalization
// protocol: a persistent ffmpeg subprocess muxes the video and audio
// streams into a ".partial.mp4" staging file held under an advisory
// exclusive lock, promoted to its final name only on a clean finalize.
package mux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"

	"screenrec/internal/domain"
)

// Writer writes a single MP4 file holding one H.264 video stream and one
// AAC audio stream. The file lock and the mux process are owned
// exclusively by the session that created this Writer.
type Writer struct {
	stagingPath string
	finalPath   string

	cmd      *exec.Cmd
	videoW   *os.File
	audioW   *os.File
	lockFile *os.File
	locked   bool

	bytesWritten int64

	finalizeOnce sync.Once
	finalizeErr  error
}

// Initialize creates the staging container, opens it for deny-write
// sharing, declares the video/audio streams, and begins the mux process.
// Lock acquisition failure is logged by the caller and is non-fatal: the
// recording proceeds with weaker external-writer protection.
func Initialize(ffmpegPath, stagingPath, finalPath string, cfg domain.MuxConfig) (*Writer, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if f, err := os.Create(stagingPath); err != nil {
		return nil, fmt.Errorf("mux: create staging file: %w", err)
	} else {
		_ = f.Close()
	}

	videoR, videoW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("mux: video pipe: %w", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("mux: audio pipe: %w", err)
	}

	fps := cfg.FPSNum
	if cfg.FPSDen > 1 {
		fps = cfg.FPSNum / cfg.FPSDen
	}
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning", "-y",
		"-f", "h264", "-r", fmt.Sprintf("%d", fps), "-i", "pipe:3",
		"-f", "s16le", "-ar", fmt.Sprintf("%d", cfg.AudioSampleRate), "-ac", fmt.Sprintf("%d", cfg.AudioChannels), "-i", "pipe:4",
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", cfg.AudioBitrateBps/1000),
		"-movflags", "+faststart",
		"-f", "mp4", stagingPath,
	}

	cmd := exec.Command(ffmpegPath, args...)
	cmd.ExtraFiles = []*os.File{videoR, audioR}

	if err := cmd.Start(); err != nil {
		_ = videoR.Close()
		_ = audioR.Close()
		_ = videoW.Close()
		_ = audioW.Close()
		return nil, fmt.Errorf("mux: start: %w", err)
	}
	_ = videoR.Close()
	_ = audioR.Close()

	w := &Writer{
		stagingPath: stagingPath,
		finalPath:   finalPath,
		cmd:         cmd,
		videoW:      videoW,
		audioW:      audioW,
	}

	lockFile, err := os.OpenFile(stagingPath, os.O_RDONLY, 0)
	if err != nil {
		return w, nil
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = lockFile.Close()
		return w, nil
	}
	w.lockFile = lockFile
	w.locked = true

	return w, nil
}

// Locked reports whether the exclusive write lock was successfully held.
func (w *Writer) Locked() bool { return w.locked }

// WriteVideo forwards a compressed access unit to the mux in PTS order.
func (w *Writer) WriteVideo(sample domain.EncodedSample) error {
	n, err := w.videoW.Write(sample.Data)
	w.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("mux: write video: %w", err)
	}
	return nil
}

// WriteAudio forwards a PCM packet to the mux in PTS order.
func (w *Writer) WriteAudio(pkt domain.AudioPacket) error {
	n, err := w.audioW.Write(pkt.Samples)
	w.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("mux: write audio: %w", err)
	}
	return nil
}

// BytesWritten returns the running byte counter across both streams.
func (w *Writer) BytesWritten() int64 { return w.bytesWritten }

// FinalPath returns the path the staging file is promoted to.
func (w *Writer) FinalPath() string { return w.finalPath }

// Finalize closes the muxer, flushes buffered samples, releases the
// exclusive lock, and renames the staging file to its final name.
// Invariant I5: finalize runs at most once; Finalize is itself
// idempotent (later calls return the first outcome) but the caller is
// still responsible for gating entry via the session state machine.
func (w *Writer) Finalize() error {
	w.finalizeOnce.Do(func() {
		w.finalizeErr = w.doFinalize()
	})
	return w.finalizeErr
}

func (w *Writer) doFinalize() error {
	_ = w.videoW.Close()
	_ = w.audioW.Close()

	waitErr := w.cmd.Wait()

	if w.lockFile != nil {
		_ = unix.Flock(int(w.lockFile.Fd()), unix.LOCK_UN)
		_ = w.lockFile.Close()
		w.locked = false
	}

	if waitErr != nil {
		return fmt.Errorf("mux: close: %w", waitErr)
	}

	if err := os.Rename(w.stagingPath, w.finalPath); err != nil {
		return fmt.Errorf("mux: finalize rename: %w", err)
	}
	return nil
}

// ErrNotLocked is an exported sentinel for callers that require the
// exclusive lock but find Locked() false; nothing in this package
// returns it.
var ErrNotLocked = errors.New("mux: exclusive write lock not held")
