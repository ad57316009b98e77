package encoder

import (
	"testing"

	"screenrec/internal/domain"
)

func TestBuildTierChainEndsInSoftware720p30(t *testing.T) {
	profile := domain.EncoderProfile{Width: 2560, Height: 1440, FPS: 60, BitrateBps: 10_000_000, ProfileTag: "main"}
	chain := buildTierChain(profile)

	if len(chain) < 2 {
		t.Fatalf("expected at least a software-original and a 720p30 tier, got %d", len(chain))
	}

	last := chain[len(chain)-1]
	if last.tier != domain.EncoderTierSoftware720 {
		t.Fatalf("expected last tier to be software_720p30, got %s", last.tier)
	}
	if last.width != 1280 || last.height != 720 || last.fps != 30 {
		t.Fatalf("expected hard-coded 1280x720/30fps safe profile, got %dx%d@%d", last.width, last.height, last.fps)
	}

	secondLast := chain[len(chain)-2]
	if secondLast.tier != domain.EncoderTierSoftware {
		t.Fatalf("expected the tier before 720p30 to be software at original resolution, got %s", secondLast.tier)
	}
	if secondLast.width != profile.Width || secondLast.height != profile.Height || secondLast.fps != profile.FPS {
		t.Fatalf("expected software-original tier to keep the profile's resolution, got %dx%d@%d", secondLast.width, secondLast.height, secondLast.fps)
	}
}

func TestBuildTierChainHardwareCandidatesComeFirst(t *testing.T) {
	profile := domain.EncoderProfile{Width: 1920, Height: 1080, FPS: 30, BitrateBps: 6_000_000}
	chain := buildTierChain(profile)
	if chain[0].tier != domain.EncoderTierHardware {
		t.Fatalf("expected the chain to start with hardware candidates, got %s first", chain[0].tier)
	}
}

func TestCommonCodecArgsEncodeCBRAndGOP(t *testing.T) {
	profile := domain.EncoderProfile{Width: 1920, Height: 1080, FPS: 30, BitrateBps: 6_000_000, ProfileTag: "baseline"}
	args := commonCodecArgs("libx264", profile)

	want := map[string]string{
		"-b:v":     "6000k",
		"-maxrate": "6000k", // CBR: maxrate pinned equal to target bitrate
		"-g":       "60",    // GOP = 2*fps
		"-bf":      "0",     // zero B-frames
	}
	got := argMap(args)
	for flag, value := range want {
		if got[flag] != value {
			t.Fatalf("flag %s: got %q, want %q (args=%v)", flag, got[flag], value, args)
		}
	}
}

func TestCommonCodecArgsDefaultsToBaselineProfile(t *testing.T) {
	profile := domain.EncoderProfile{Width: 1920, Height: 1080, FPS: 30, BitrateBps: 6_000_000}
	args := commonCodecArgs("libx264", profile)
	got := argMap(args)
	if got["-profile:v"] != "baseline" {
		t.Fatalf("expected default profile tag baseline, got %q", got["-profile:v"])
	}
}

func argMap(args []string) map[string]string {
	m := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if len(args[i]) > 0 && args[i][0] == '-' {
			m[args[i]] = args[i+1]
		}
	}
	return m
}

func TestNextNALFindsCompleteUnitsOnly(t *testing.T) {
	// Two NAL units back to back, each with a 3-byte start code: an SPS
	// (type 7) then an IDR slice (type 5).
	buf := []byte{0, 0, 1, 7, 0xAA, 0xBB, 0, 0, 1, 5, 0xCC}

	start, length, nalType, ok := nextNAL(buf)
	if !ok {
		t.Fatal("expected a complete NAL to be found")
	}
	if nalType != 7 {
		t.Fatalf("expected NAL type 7 (SPS), got %d", nalType)
	}
	if start != 0 || length != 6 {
		t.Fatalf("expected the first NAL to span [0,6), got start=%d length=%d", start, length)
	}
}

func TestNextNALIncompleteReturnsFalse(t *testing.T) {
	buf := []byte{0, 0, 1, 5, 0xAA, 0xBB}
	_, _, _, ok := nextNAL(buf)
	if ok {
		t.Fatal("expected an incomplete NAL (no following start code) to report not-ok")
	}
}
