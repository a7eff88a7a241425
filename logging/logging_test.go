package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestLevelFiltering(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	logger.Warn("this should appear")

	entries := logs.All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].Message, test.ShouldEqual, "this should appear")
}

func TestSubloggerNaming(t *testing.T) {
	logger := NewDebugLogger("engine")
	child := logger.Sublogger("mapstore")

	zl, ok := child.(*zapLogger)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, zl.name, test.ShouldEqual, "engine.mapstore")
}

func TestAtomicLevel(t *testing.T) {
	lvl := NewAtomicLevelAt(INFO)
	test.That(t, lvl.Get(), test.ShouldEqual, INFO)
	lvl.Set(ERROR)
	test.That(t, lvl.Get(), test.ShouldEqual, ERROR)
}
