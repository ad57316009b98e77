package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerReturnsAUsableInstance(t *testing.T) {
	log := Logger()
	log.Info().Msg("smoke test")
}

func TestBuildFallsBackToInfoOnUnknownLevel(t *testing.T) {
	build("not-a-real-level")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected fallback to info level, got %v", zerolog.GlobalLevel())
	}
}

func TestBuildHonorsRecognizedLevel(t *testing.T) {
	build("warn")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", zerolog.GlobalLevel())
	}
}
