package power

import "testing"

// ClampFPS/ClampBitrate are pure and exercised directly. OnACPower itself
// needs a live UPower D-Bus service to probe and is not unit-tested here;
// the controller tests substitute a PowerProbe fake instead.

func TestClampFPSPassesThroughOnAC(t *testing.T) {
	if got := ClampFPS(60, true); got != 60 {
		t.Fatalf("expected 60 unchanged on AC, got %d", got)
	}
}

func TestClampFPSClampsOnBattery(t *testing.T) {
	if got := ClampFPS(60, false); got != 30 {
		t.Fatalf("expected 60 clamped to 30 on battery, got %d", got)
	}
}

func TestClampFPSLeavesLowFPSUnchangedOnBattery(t *testing.T) {
	if got := ClampFPS(30, false); got != 30 {
		t.Fatalf("expected 30 to remain 30 on battery, got %d", got)
	}
}

func TestClampBitratePassesThroughOnAC(t *testing.T) {
	if got := ClampBitrate(20_000_000, true); got != 20_000_000 {
		t.Fatalf("expected bitrate unchanged on AC, got %d", got)
	}
}

func TestClampBitrateClampsOnBattery(t *testing.T) {
	if got := ClampBitrate(20_000_000, false); got != 8_000_000 {
		t.Fatalf("expected bitrate clamped to 8Mbps on battery, got %d", got)
	}
}

func TestClampBitrateLeavesLowBitrateUnchangedOnBattery(t *testing.T) {
	if got := ClampBitrate(2_000_000, false); got != 2_000_000 {
		t.Fatalf("expected a below-cap bitrate to remain unchanged on battery, got %d", got)
	}
}
