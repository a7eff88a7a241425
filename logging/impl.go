package logging

import (
	"fmt"

	"go.uber.org/zap"
)

type zapLogger struct {
	name  string
	level AtomicLevel
	core  *zap.Logger
}

func newZapLogger(name string, level AtomicLevel) *zapLogger {
	built, err := NewZapConfig().Build()
	if err != nil {
		// Config above is a static literal; Build only fails on malformed
		// configuration, which would be a programming error here.
		panic(err)
	}
	return &zapLogger{name: name, level: level, core: built}
}

func (z *zapLogger) shouldLog(lvl Level) bool {
	return lvl >= z.level.Get()
}

func (z *zapLogger) sugared() *zap.SugaredLogger {
	if z.name == "" {
		return z.core.Sugar()
	}
	return z.core.Sugar().Named(z.name)
}

func (z *zapLogger) SetLevel(lvl Level) {
	z.level.Set(lvl)
}

func (z *zapLogger) Sublogger(subname string) Logger {
	newName := subname
	if z.name != "" {
		newName = fmt.Sprintf("%s.%s", z.name, subname)
	}
	return &zapLogger{name: newName, level: NewAtomicLevelAt(z.level.Get()), core: z.core}
}

func (z *zapLogger) Debug(args ...interface{}) {
	if z.shouldLog(DEBUG) {
		z.sugared().Debug(args...)
	}
}

func (z *zapLogger) Debugf(template string, args ...interface{}) {
	if z.shouldLog(DEBUG) {
		z.sugared().Debugf(template, args...)
	}
}

func (z *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	if z.shouldLog(DEBUG) {
		z.sugared().Debugw(msg, keysAndValues...)
	}
}

func (z *zapLogger) Info(args ...interface{}) {
	if z.shouldLog(INFO) {
		z.sugared().Info(args...)
	}
}

func (z *zapLogger) Infof(template string, args ...interface{}) {
	if z.shouldLog(INFO) {
		z.sugared().Infof(template, args...)
	}
}

func (z *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	if z.shouldLog(INFO) {
		z.sugared().Infow(msg, keysAndValues...)
	}
}

func (z *zapLogger) Warn(args ...interface{}) {
	if z.shouldLog(WARN) {
		z.sugared().Warn(args...)
	}
}

func (z *zapLogger) Warnf(template string, args ...interface{}) {
	if z.shouldLog(WARN) {
		z.sugared().Warnf(template, args...)
	}
}

func (z *zapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	if z.shouldLog(WARN) {
		z.sugared().Warnw(msg, keysAndValues...)
	}
}

func (z *zapLogger) Error(args ...interface{}) {
	if z.shouldLog(ERROR) {
		z.sugared().Error(args...)
	}
}

func (z *zapLogger) Errorf(template string, args ...interface{}) {
	if z.shouldLog(ERROR) {
		z.sugared().Errorf(template, args...)
	}
}

func (z *zapLogger) Errorw(msg string, keysAndValues ...interface{}) {
	if z.shouldLog(ERROR) {
		z.sugared().Errorw(msg, keysAndValues...)
	}
}
