package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"unknown": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	logger, closer := New(config.LoggingConfig{Level: "warn", File: path, MaxSizeMB: 1}, false)

	logger.Info().Msg("hidden")
	logger.Warn().Str("icao24", "a12345").Msg("visible")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file, got %v", err)
	}
	content := string(data)
	if strings.Contains(content, "hidden") {
		t.Error("Expected info message filtered at warn level")
	}
	if !strings.Contains(content, `"icao24":"a12345"`) {
		t.Errorf("Expected structured field in log, got %s", content)
	}
}

func TestNewWithWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.log")
	var extra strings.Builder
	logger, closer := NewWithWriters(config.LoggingConfig{Level: "info", File: path}, &extra)
	defer closer.Close()

	logger.Error().Msg("both")

	if !strings.Contains(extra.String(), `"message":"both"`) {
		t.Errorf("Expected event in extra writer, got %q", extra.String())
	}
}
