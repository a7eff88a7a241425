// Package logging provides the leveled, structured logger used across slamtrack.
package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Level is a logging severity, ordered the same as zapcore.Level.
type Level int8

// Levels, ordered from most to least verbose.
const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// AsZap converts a Level to its zapcore equivalent.
func (l Level) AsZap() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// AtomicLevel is a concurrency-safe Level holder.
type AtomicLevel struct {
	mu  sync.RWMutex
	lvl Level
}

// NewAtomicLevelAt constructs an AtomicLevel initialized to lvl.
func NewAtomicLevelAt(lvl Level) AtomicLevel {
	return AtomicLevel{lvl: lvl}
}

// Get returns the current level.
func (a *AtomicLevel) Get() Level {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lvl
}

// Set updates the current level.
func (a *AtomicLevel) Set(lvl Level) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lvl = lvl
}

// Logger is the leveled, structured logging interface used throughout slamtrack.
// It mirrors the subset of go.viam.com/rdk/logging.Logger that the tracking
// front-end actually exercises.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a child logger namespaced under this one.
	Sublogger(subname string) Logger
	// SetLevel changes the minimum level this logger emits.
	SetLevel(lvl Level)
}

// NewZapConfig returns the console-encoder zap config slamtrack loggers build on,
// matching rdk's disabled-stacktrace, colorized-level convention.
func NewZapConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a Logger that emits Info+ logs to stdout, named name.
func NewLogger(name string) Logger {
	return newZapLogger(name, NewAtomicLevelAt(INFO))
}

// NewDebugLogger returns a Logger that emits Debug+ logs to stdout, named name.
func NewDebugLogger(name string) Logger {
	return newZapLogger(name, NewAtomicLevelAt(DEBUG))
}

// NewTestLogger returns a Logger suited to test output.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also returns an in-memory
// observer of every entry logged, so tests can assert on log content.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	tb.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)
	zl := &zapLogger{
		name:  "",
		level: NewAtomicLevelAt(DEBUG),
		core:  base,
	}
	return zl, logs
}
