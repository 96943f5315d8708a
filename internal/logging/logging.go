// Package logging builds the zap logger used across the dispatcher and
// provides helpers for the recurring capsule events.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the given level writing to stderr, or to
// file when file is non-empty. An empty level means "warn".
func New(level, file string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if file != "" {
		// Files keep timestamps; stderr is shared with task's own output.
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{file}
	}

	return cfg.Build()
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zapcore.WarnLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.WarnLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
}

// CapsuleLoaded logs a capsule made available by discovery.
func CapsuleLoaded(logger *zap.Logger, name, source string, roles []string) {
	logger.Debug("capsule loaded",
		zap.String("capsule", name),
		zap.String("source", source),
		zap.Strings("roles", roles))
}

// CapsuleSkipped logs a discovery candidate that was skipped.
func CapsuleSkipped(logger *zap.Logger, source string, err error) {
	logger.Warn("capsule skipped",
		zap.String("source", source),
		zap.Error(err))
}

// InvocationSkipped logs a capsule left out of a run.
func InvocationSkipped(logger *zap.Logger, name string, err error) {
	logger.Debug("capsule skipped",
		zap.String("capsule", name),
		zap.Error(err))
}

// CompatibilityWarning logs a non-fatal compatibility concern about a capsule.
func CompatibilityWarning(logger *zap.Logger, name, message string) {
	logger.Warn(message, zap.String("capsule", name))
}

// CapsuleFailed logs an error raised while running a capsule hook. Callers
// report the error to the user separately.
func CapsuleFailed(logger *zap.Logger, name, role string, err error) {
	logger.Debug("capsule failed",
		zap.String("capsule", name),
		zap.String("role", role),
		zap.Error(err))
}
