// Package logging builds the application logger: JSON lines to a rotating
// file and, for non-terminal front-ends, colored console output.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unklstewy/skyradar/pkg/config"
)

// DefaultFile returns <user config dir>/skyradar/skyradar.log, or
// skyradar.log in the working directory when that is unavailable.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "skyradar.log"
	}
	return filepath.Join(dir, "skyradar", "skyradar.log")
}

// ParseLevel maps a config level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger from cfg. console enables stderr output in addition to
// the file; terminal UIs pass false. The returned closer flushes the file.
func New(cfg config.LoggingConfig, console bool) (zerolog.Logger, io.Closer) {
	if !console {
		return NewWithWriters(cfg)
	}
	return NewWithWriters(cfg, zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}

// NewWithWriters creates a logger that writes JSON lines to the rotating file
// from cfg and every event to each extra writer as well.
func NewWithWriters(cfg config.LoggingConfig, extra ...io.Writer) (zerolog.Logger, io.Closer) {
	filename := cfg.File
	if filename == "" {
		filename = DefaultFile()
	}
	_ = os.MkdirAll(filepath.Dir(filename), 0755)

	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	var w io.Writer = file
	if len(extra) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{file}, extra...)...)
	}

	logger := zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	logger.Info().Str("loglevel", logger.GetLevel().String()).Str("file", filename).Msg("Logging set up")
	return logger, file
}
