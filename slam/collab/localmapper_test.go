package collab

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slamtrack/slam/mapstore"
)

func TestQueuedLocalMapperInsertKeyFrame(t *testing.T) {
	m := NewQueuedLocalMapper()
	test.That(t, m.AcceptKeyFrames(), test.ShouldBeTrue)

	err := m.InsertKeyFrame(context.Background(), mapstore.KeyFrameHandle(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.KeyframesInQueue(), test.ShouldEqual, 1)
}

func TestQueuedLocalMapperSetNotStopFailsWhenStopped(t *testing.T) {
	m := NewQueuedLocalMapper()
	m.SetStopped(true)

	test.That(t, m.SetNotStop(true), test.ShouldBeFalse)
}

func TestQueuedLocalMapperRequestResetClearsQueue(t *testing.T) {
	m := NewQueuedLocalMapper()
	_ = m.InsertKeyFrame(context.Background(), mapstore.KeyFrameHandle(1))
	m.RequestReset()
	test.That(t, m.KeyframesInQueue(), test.ShouldEqual, 0)
}
