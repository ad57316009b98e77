package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"screenrec/internal/domain"
)

const probeTimeout = 5 * time.Second

// tierPlan is one candidate in the fallback chain: a codec, the
// resolution/rate it will be configured at, and the ffmpeg arguments that
// realize the encoder attributes required by the component design (CBR,
// GOP = 2*fps, zero B-frames, Baseline/Main profile).
type tierPlan struct {
	tier       domain.EncoderTier
	label      string
	codec      string
	hardware   bool
	width      int
	height     int
	fps        int
	globalArgs []string
	filter     string
	codecArgs  []string
}

// buildTierChain assembles the three-tier fallback chain for a profile:
// hardware candidates (per OS), software at the original resolution, then
// the hard-coded 720p30 safe profile.
func buildTierChain(profile domain.EncoderProfile) []tierPlan {
	chain := hardwareCandidates(profile)
	chain = append(chain, softwarePlan(domain.EncoderTierSoftware, profile.Width, profile.Height, profile.FPS, profile))
	chain = append(chain, softwarePlan(domain.EncoderTierSoftware720, 1280, 720, 30, profile))
	return chain
}

func hardwareCandidates(profile domain.EncoderProfile) []tierPlan {
	switch runtime.GOOS {
	case "darwin":
		return []tierPlan{
			hardwarePlan("h264_videotoolbox", "h264_videotoolbox", nil, "format=nv12", profile),
		}
	case "windows":
		return []tierPlan{
			hardwarePlan("h264_nvenc", "h264_nvenc", nil, "format=nv12", profile),
			hardwarePlan("h264_amf", "h264_amf", nil, "format=nv12", profile),
			hardwarePlan("h264_qsv", "h264_qsv", nil, "format=nv12", profile),
		}
	default:
		candidates := []tierPlan{
			hardwarePlan("h264_nvenc", "h264_nvenc", nil, "format=nv12", profile),
		}
		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				label := fmt.Sprintf("h264_vaapi (%s)", dev)
				candidates = append(candidates, hardwarePlan("h264_vaapi", label, []string{"-vaapi_device", dev}, "format=nv12,hwupload", profile))
			}
		}
		candidates = append(candidates, hardwarePlan("h264_qsv", "h264_qsv", nil, "format=nv12", profile))
		return candidates
	}
}

func hardwarePlan(codec, label string, globalArgs []string, filter string, profile domain.EncoderProfile) tierPlan {
	return tierPlan{
		tier:       domain.EncoderTierHardware,
		label:      label,
		codec:      codec,
		hardware:   true,
		width:      profile.Width,
		height:     profile.Height,
		fps:        profile.FPS,
		globalArgs: append([]string(nil), globalArgs...),
		filter:     filter,
		codecArgs:  commonCodecArgs(codec, profile),
	}
}

func softwarePlan(tier domain.EncoderTier, width, height, fps int, profile domain.EncoderProfile) tierPlan {
	p := profile
	p.Width, p.Height, p.FPS = width, height, fps
	return tierPlan{
		tier:      tier,
		label:     "libx264",
		codec:     "libx264",
		hardware:  false,
		width:     width,
		height:    height,
		fps:       fps,
		codecArgs: append([]string{"-preset", "ultrafast", "-tune", "zerolatency"}, commonCodecArgs("libx264", p)...),
	}
}

// commonCodecArgs realizes CBR, GOP = 2*fps and zero B-frames for every
// codec. The Baseline/Main profile tag (with -keyint_min and
// -sc_threshold) is passed only to libx264; hardware codecs get no
// -profile:v flag and run at their own default profile.
func commonCodecArgs(codec string, profile domain.EncoderProfile) []string {
	gop := profile.GOPFrames()
	if gop <= 0 {
		gop = profile.FPS * 2
	}
	profileTag := profile.ProfileTag
	if profileTag == "" {
		profileTag = "baseline"
	}
	args := []string{
		"-c:v", codec,
		"-b:v", fmt.Sprintf("%dk", profile.BitrateBps/1000),
		"-maxrate", fmt.Sprintf("%dk", profile.BitrateBps/1000),
		"-bufsize", fmt.Sprintf("%dk", 2*profile.BitrateBps/1000),
		"-g", fmt.Sprintf("%d", gop),
		"-bf", "0",
		"-pix_fmt", "yuv420p",
	}
	if codec == "libx264" {
		args = append(args, "-profile:v", profileTag, "-keyint_min", fmt.Sprintf("%d", gop), "-sc_threshold", "0")
	}
	return args
}

// probeTier verifies a tier actually works on this host by running a
// short synthetic clip through it, mirroring the approach the rest of
// the example pack uses to avoid trusting a codec name that ffmpeg lists
// but cannot actually initialize on this hardware.
func probeTier(ctx context.Context, ffmpegPath string, plan tierPlan) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{"-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=0.3", plan.width, plan.height, plan.fps),
		"-an", "-frames:v", "4",
	)
	if plan.filter != "" {
		args = append(args, "-vf", plan.filter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("probe timeout after %s", probeTimeout)
		}
		return fmt.Errorf("probe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
