package domain

import "testing"

func TestAudioPacketDuration(t *testing.T) {
	pkt := AudioPacket{FrameCount: 960, SampleRate: 48000}
	if got := pkt.Duration(); got != 200_000 {
		t.Fatalf("expected 200000 (20ms in hns), got %d", got)
	}
}

func TestAudioPacketDurationZeroSampleRate(t *testing.T) {
	pkt := AudioPacket{FrameCount: 960, SampleRate: 0}
	if got := pkt.Duration(); got != 0 {
		t.Fatalf("expected 0 for an unset sample rate, got %d", got)
	}
}

func TestEncoderProfileGOPFrames(t *testing.T) {
	p := EncoderProfile{FPS: 30}
	if got := p.GOPFrames(); got != 60 {
		t.Fatalf("expected GOP = 2*fps = 60, got %d", got)
	}
}

func TestEncoderProfileGOPFramesZeroFPS(t *testing.T) {
	p := EncoderProfile{FPS: 0}
	if got := p.GOPFrames(); got != 0 {
		t.Fatalf("expected 0 for an unset fps, got %d", got)
	}
}
