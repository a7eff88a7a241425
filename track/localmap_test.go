package track

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/slamtrack/rimage/transform"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

func newLocalMapTestKeyFrame(store *mapstore.MapStore, n int) mapstore.KeyFrameHandle {
	kps := make(keypoints.KeyPoints, n)
	descs := make(keypoints.Descriptors, n)
	kf := mapstore.NewKeyFrame(0, spatialmath.NewZeroPose(), kps, descs, []float64{1, 1.2}, nil)
	return store.AddKeyFrame(kf)
}

func TestUpdateLocalKeyFramesPicksHighestVoteAsReference(t *testing.T) {
	store := mapstore.NewMapStore()
	kf1 := newLocalMapTestKeyFrame(store, 2)
	kf2 := newLocalMapTestKeyFrame(store, 2)

	mp1 := mapstore.NewMapPoint(0, r3.Vector{X: 1}, kf1)
	mph1 := store.AddMapPoint(mp1)
	mp1.AddObservation(kf1, 0)
	mp1.AddObservation(kf2, 0)

	mp2 := mapstore.NewMapPoint(0, r3.Vector{X: 2}, kf2)
	mph2 := store.AddMapPoint(mp2)
	mp2.AddObservation(kf2, 1)

	frame := NewMonocularFrame(1, 0, nil, &keypoints.OrientedKeypoints{
		Points:       keypoints.KeyPoints{{}, {}},
		Descriptors:  keypoints.Descriptors{{0x01}, {0x02}},
		ScaleFactors: []float64{1},
	}, nil, nil)
	frame.MapPoints[0] = mph1
	frame.MapPoints[1] = mph2

	var cache LocalMapCache
	newRef := cache.UpdateLocalKeyFrames(frame, store)

	test.That(t, newRef, test.ShouldEqual, kf2) // kf2 observes both points, kf1 only one
	test.That(t, len(cache.KeyFrames()), test.ShouldEqual, 2)
}

func TestUpdateLocalKeyFramesEmptyWhenNoMapPoints(t *testing.T) {
	store := mapstore.NewMapStore()
	frame := NewMonocularFrame(1, 0, nil, &keypoints.OrientedKeypoints{
		Points:       keypoints.KeyPoints{{}},
		Descriptors:  keypoints.Descriptors{{0x01}},
		ScaleFactors: []float64{1},
	}, nil, nil)

	var cache LocalMapCache
	newRef := cache.UpdateLocalKeyFrames(frame, store)

	test.That(t, newRef.Valid(), test.ShouldBeFalse)
	test.That(t, len(cache.KeyFrames()), test.ShouldEqual, 0)
}

func TestUpdateLocalKeyFramesSkipsTombstonedNeighbor(t *testing.T) {
	store := mapstore.NewMapStore()
	root := newLocalMapTestKeyFrame(store, 1)
	bad := newLocalMapTestKeyFrame(store, 1)

	mp := mapstore.NewMapPoint(0, r3.Vector{X: 1}, root)
	mph := store.AddMapPoint(mp)
	mp.AddObservation(root, 0)
	store.KeyFrame(root).AddMapPoint(0, mph)

	badMP := mapstore.NewMapPoint(0, r3.Vector{X: 2}, bad)
	badMPH := store.AddMapPoint(badMP)
	badMP.AddObservation(root, 0)
	badMP.AddObservation(bad, 0)
	store.KeyFrame(bad).AddMapPoint(0, badMPH)

	store.KeyFrame(bad).ChangeParent(root, store)
	store.KeyFrame(bad).SetBadFlag(store)

	frame := NewMonocularFrame(1, 0, nil, &keypoints.OrientedKeypoints{
		Points:       keypoints.KeyPoints{{}},
		Descriptors:  keypoints.Descriptors{{0x01}},
		ScaleFactors: []float64{1},
	}, nil, nil)
	frame.MapPoints[0] = badMPH

	var cache LocalMapCache
	newRef := cache.UpdateLocalKeyFrames(frame, store)

	// badMPH's only surviving observer after tombstoning is root (SetBadFlag
	// erased bad's own observation), so root is the only vote and the
	// tombstoned keyframe must never appear in the local set.
	test.That(t, newRef, test.ShouldEqual, root)
	for _, h := range cache.KeyFrames() {
		test.That(t, h, test.ShouldNotEqual, bad)
	}
}

func TestSearchLocalPointsReturnsOnlyUnseenInFrustumPoints(t *testing.T) {
	store := mapstore.NewMapStore()
	kf := newLocalMapTestKeyFrame(store, 1)

	seen := mapstore.NewMapPoint(0, r3.Vector{X: 0, Y: 0, Z: 5}, kf)
	seenH := store.AddMapPoint(seen)
	seen.UpdateNormalAndDepth(store) // no observations yet; leave zero-value scale range

	behind := mapstore.NewMapPoint(0, r3.Vector{X: 0, Y: 0, Z: -5}, kf)
	behindH := store.AddMapPoint(behind)

	intrin := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	frame := NewMonocularFrame(1, 0, nil, &keypoints.OrientedKeypoints{ScaleFactors: []float64{1, 1.2}}, intrin, nil)
	frame.Pose = spatialmath.NewZeroPose()

	var cache LocalMapCache
	cache.mapPoints = []mapstore.MapPointHandle{seenH, behindH}

	pending := cache.SearchLocalPoints(frame, store)

	// The point directly behind the camera never enters the pending set; the
	// other's scale-invariance range is zero (no observations recorded), so
	// it also fails the frustum distance test — SearchLocalPoints must not
	// panic or crash on either.
	for _, h := range pending {
		test.That(t, h, test.ShouldNotEqual, behindH)
	}
}
