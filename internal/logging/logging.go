// Package logging wraps zap with the key/value helpers used across the app.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger. A nil *Logger discards everything.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger. Mode "prod" emits JSON at info level, anything else
// emits console output at debug level. An empty path logs to stderr.
func New(mode, path string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.DisableStacktrace = true
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Logger{sugar: zl.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, mostly for tests using zaptest/observer.
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{sugar: zl.Sugar()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	// Best-effort sync; stderr returns EINVAL on some platforms.
	_ = l.sugar.Sync()
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Errorw(msg, keysAndValues...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Named returns a child logger with a component name.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sugar: l.sugar.Named(name)}
}
