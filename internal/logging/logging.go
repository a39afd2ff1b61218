// Package logging builds the monitoring system's log sinks: a console
// core and a size-rotated file core sharing one runtime-adjustable level.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// backupCount is the fixed number of rotated log files kept.
const backupCount = 5

// Options configures the log sinks.
type Options struct {
	Level        string
	FilePath     string
	MaxSizeBytes int
}

// Sinks holds the assembled logger and the shared level, which can be
// adjusted at runtime (e.g. from a configuration change listener).
type Sinks struct {
	Logger *zap.Logger
	level  zap.AtomicLevel
	file   *lumberjack.Logger
}

// Setup assembles the console and rotated-file cores. The file sink
// rotates by size with a fixed backup count; both sinks share one
// minimum severity level.
func Setup(opts Options) (*Sinks, error) {
	if dir := filepath.Dir(opts.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	maxSizeMB := opts.MaxSizeBytes / (1024 * 1024)
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    maxSizeMB,
		MaxBackups: backupCount,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoderCfg := encoderCfg
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderCfg),
			zapcore.Lock(os.Stderr),
			level,
		),
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			level,
		),
	)

	return &Sinks{
		Logger: zap.New(core),
		level:  level,
		file:   rotator,
	}, nil
}

// SetLevel changes the shared minimum severity for both sinks.
func (s *Sinks) SetLevel(level string) {
	s.level.SetLevel(ParseLevel(level))
}

// Close flushes the logger and closes the rotated file.
func (s *Sinks) Close() error {
	// Sync on stderr can fail harmlessly; the file close result matters.
	_ = s.Logger.Sync()
	return s.file.Close()
}

// ParseLevel maps a configuration level string to a zap level,
// defaulting to Info for unrecognized values.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
