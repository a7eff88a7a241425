package track

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/slamtrack/spatialmath"
)

func TestTrajectoryAppendAndLen(t *testing.T) {
	var log TrajectoryLog
	log.Append(TrajectoryEntry{FrameID: 1, Timestamp: 100, RelativePose: spatialmath.NewZeroPose()})
	log.Append(TrajectoryEntry{FrameID: 2, Timestamp: 200, RelativePose: spatialmath.NewZeroPose()})

	test.That(t, log.Len(), test.ShouldEqual, 2)
	entries := log.Entries()
	test.That(t, entries[0].FrameID, test.ShouldEqual, int64(1))
	test.That(t, entries[1].FrameID, test.ShouldEqual, int64(2))
}

func TestTrajectoryRepeatLastMarksLost(t *testing.T) {
	var log TrajectoryLog
	log.Append(TrajectoryEntry{FrameID: 1, Timestamp: 100})
	log.RepeatLast(2, 200)

	entries := log.Entries()
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[1].FrameID, test.ShouldEqual, int64(2))
	test.That(t, entries[1].Lost, test.ShouldBeTrue)
}

func TestTrajectoryRepeatLastOnEmptyLogStillAppends(t *testing.T) {
	var log TrajectoryLog
	log.RepeatLast(1, 100)

	test.That(t, log.Len(), test.ShouldEqual, 1)
	test.That(t, log.Entries()[0].Lost, test.ShouldBeTrue)
}

func TestTrajectoryResetClears(t *testing.T) {
	var log TrajectoryLog
	log.Append(TrajectoryEntry{FrameID: 1})
	log.Reset()
	test.That(t, log.Len(), test.ShouldEqual, 0)
}
