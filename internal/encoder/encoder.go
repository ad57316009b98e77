// Package encoder implements the H.264 video encoder component: a
// three-tier hardware/software fallback chain (see tiers.go), each tier
// realized as a persistent ffmpeg subprocess that accepts raw NV12
// frames on stdin and emits an Annex-B H.264 stream on stdout.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"screenrec/internal/domain"
)

// Encoder commits to exactly one fallback tier per session (invariant:
// once initialized, the committed tier is fixed — no silent downgrade).
type Encoder struct {
	ffmpegPath string
	plan       tierPlan
	log        zerolog.Logger

	mu    sync.Mutex
	proc  *process
	cache *domain.VideoFrame // last frame submitted, for duplicate re-encode

	keyframeRequested atomic.Bool
}

// process wraps one running ffmpeg encode subprocess.
type process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending chan int64
	samples chan domain.EncodedSample
	done    chan struct{}
}

// Initialize walks the three-tier fallback chain in order, committing to
// the first tier that probes successfully. Every tier transition is
// logged. Returns an error only if all three tiers fail.
func Initialize(ctx context.Context, profile domain.EncoderProfile, ffmpegPath string, log zerolog.Logger) (*Encoder, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	chain := buildTierChain(profile)

	var lastErr error
	for _, plan := range chain {
		if err := probeTier(ctx, ffmpegPath, plan); err != nil {
			log.Warn().Str("tier", string(plan.tier)).Str("codec", plan.codec).Err(err).Msg("encoder tier probe failed")
			lastErr = err
			continue
		}

		e := &Encoder{ffmpegPath: ffmpegPath, plan: plan, log: log}
		proc, err := e.spawn(ctx)
		if err != nil {
			log.Warn().Str("tier", string(plan.tier)).Str("codec", plan.codec).Err(err).Msg("encoder tier spawn failed")
			lastErr = err
			continue
		}
		e.proc = proc
		log.Info().Str("tier", string(plan.tier)).Str("codec", plan.codec).Int("width", plan.width).Int("height", plan.height).Msg("encoder tier committed")
		return e, nil
	}

	return nil, fmt.Errorf("encoder: all fallback tiers failed: %w", lastErr)
}

func (e *Encoder) spawn(ctx context.Context) (*process, error) {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "nv12",
		"-s", fmt.Sprintf("%dx%d", e.plan.width, e.plan.height),
		"-r", fmt.Sprintf("%d", e.plan.fps),
		"-i", "-",
	)
	args = append(args, e.plan.globalArgs...)
	if e.plan.filter != "" {
		args = append(args, "-vf", e.plan.filter)
	}
	args = append(args, e.plan.codecArgs...)
	args = append(args, "-f", "h264", "-")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: start: %w", err)
	}

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(chan int64, 64),
		samples: make(chan domain.EncodedSample, 64),
		done:    make(chan struct{}),
	}

	go p.demux(stdout, e.log)
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// demux reads the Annex-B byte stream and groups NAL units into access
// units (one or more non-VCL NALs followed by a single VCL NAL), pairing
// each completed access unit with the oldest pending PTS.
func (p *process) demux(r io.Reader, log zerolog.Logger) {
	defer close(p.samples)

	buf := make([]byte, 0, 1<<20)
	chunk := make([]byte, 64*1024)
	var unit []byte
	keyframe := false

	flush := func() {
		if len(unit) == 0 {
			return
		}
		pts, ok := <-p.pending
		if !ok {
			return
		}
		p.samples <- domain.EncodedSample{
			Data:     append([]byte(nil), unit...),
			PTSHns:   pts,
			Keyframe: keyframe,
		}
		unit = unit[:0]
		keyframe = false
	}

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		for {
			start, nalLen, nalType, ok := nextNAL(buf)
			if !ok {
				break
			}
			isVCL := nalType == 1 || nalType == 5
			if nalType == 5 {
				keyframe = true
			}
			unit = append(unit, buf[start:start+nalLen]...)
			buf = buf[start+nalLen:]
			if isVCL {
				flush()
			}
		}
		if err != nil {
			flush()
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("encoder stdout read error")
			}
			return
		}
	}
}

// nextNAL scans for the next complete Annex-B NAL unit in buf (start
// code through the byte before the next start code, or end of buffer).
// Returns ok=false if no full NAL is yet available.
func nextNAL(buf []byte) (start, length, nalType int, ok bool) {
	first := indexStartCode(buf, 0)
	if first < 0 {
		return 0, 0, 0, false
	}
	headerLen := startCodeLen(buf, first)
	bodyStart := first + headerLen
	if bodyStart >= len(buf) {
		return 0, 0, 0, false
	}
	next := indexStartCode(buf, bodyStart)
	if next < 0 {
		return 0, 0, 0, false
	}
	nalType = int(buf[bodyStart]) & 0x1f
	return first, next - first, nalType, true
}

func indexStartCode(buf []byte, from int) int {
	for i := from; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			return i
		}
	}
	return -1
}

func startCodeLen(buf []byte, at int) int {
	if at > 0 && buf[at-1] == 0 {
		return 4
	}
	return 3
}

// Encode submits a frame for encoding and returns any compressed sample
// already available. A nil sample with a nil error means the transform
// needs more input — not an error.
func (e *Encoder) Encode(frame domain.VideoFrame, pts int64) (*domain.EncodedSample, error) {
	e.mu.Lock()
	if e.keyframeRequested.CompareAndSwap(true, false) {
		if err := e.restartLocked(); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("encoder: keyframe restart: %w", err)
		}
	}
	proc := e.proc
	e.cache = &frame
	e.mu.Unlock()

	select {
	case proc.pending <- pts:
	default:
		return nil, fmt.Errorf("encoder: pending PTS queue full")
	}

	if _, err := proc.stdin.Write(frame.Pixels); err != nil {
		return nil, fmt.Errorf("encoder: write frame: %w", err)
	}

	select {
	case sample, ok := <-proc.samples:
		if !ok {
			return nil, fmt.Errorf("encoder: process exited")
		}
		return &sample, nil
	default:
		return nil, nil
	}
}

// restartLocked respawns the committed tier's ffmpeg process so the new
// bitstream begins with a fresh IDR. ffmpeg's CLI offers no portable way
// to force a keyframe on a live stream; a respawn on the same committed
// tier/codec satisfies "on-demand IDR" without violating the
// fixed-tier-per-session invariant, since the tier itself does not change.
func (e *Encoder) restartLocked() error {
	old := e.proc
	proc, err := e.spawn(context.Background())
	if err != nil {
		return err
	}
	e.proc = proc
	if old != nil {
		_ = old.stdin.Close()
	}
	return nil
}

// RequestKeyframe sets a one-shot flag; the next Encode call forces the
// next access unit to be an IDR.
func (e *Encoder) RequestKeyframe() {
	e.keyframeRequested.Store(true)
}

// Flush drains the transform during shutdown.
func (e *Encoder) Flush() ([]domain.EncodedSample, error) {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()

	if proc == nil {
		return nil, nil
	}
	_ = proc.stdin.Close()

	var out []domain.EncodedSample
	for sample := range proc.samples {
		out = append(out, sample)
	}
	<-proc.done
	return out, nil
}

// Tier reports the fallback tier this encoder committed to.
func (e *Encoder) Tier() domain.EncoderTier { return e.plan.tier }

// Width and Height report the committed output dimensions.
func (e *Encoder) Width() int  { return e.plan.width }
func (e *Encoder) Height() int { return e.plan.height }

// Close terminates the encoder process if it has not already exited.
func (e *Encoder) Close() error {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()
	if proc == nil {
		return nil
	}
	_ = proc.stdin.Close()
	select {
	case <-proc.done:
	default:
		_ = proc.cmd.Process.Kill()
	}
	return nil
}
