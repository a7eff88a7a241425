package mapstore

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

func newTestKeyFrame(store *MapStore, n int) KeyFrameHandle {
	kps := make(keypoints.KeyPoints, n)
	descs := make(keypoints.Descriptors, n)
	for i := range kps {
		descs[i] = keypoints.Descriptor{byte(i)}
	}
	kf := NewKeyFrame(0, spatialmath.NewZeroPose(), kps, descs, []float64{1, 1.2, 1.44}, nil)
	return store.AddKeyFrame(kf)
}

func TestAddKeyFrameAssignsHandle(t *testing.T) {
	store := NewMapStore()
	h1 := newTestKeyFrame(store, 3)
	h2 := newTestKeyFrame(store, 3)

	test.That(t, h1.Valid(), test.ShouldBeTrue)
	test.That(t, h2.Valid(), test.ShouldBeTrue)
	test.That(t, h1, test.ShouldNotEqual, h2)
	test.That(t, store.KeyFramesInMap(), test.ShouldEqual, 2)
}

func TestMapPointSetBadFlagClearsObservations(t *testing.T) {
	store := NewMapStore()
	kfh := newTestKeyFrame(store, 2)
	mp := NewMapPoint(0, r3.Vector{X: 1, Y: 2, Z: 3}, kfh)
	mph := store.AddMapPoint(mp)
	mp.AddObservation(kfh, 0)
	store.KeyFrame(kfh).AddMapPoint(0, mph)

	mp.SetBadFlag(store)

	test.That(t, mp.IsBad(), test.ShouldBeTrue)
	matches := store.KeyFrame(kfh).GetMapPointMatches()
	test.That(t, matches[0].Valid(), test.ShouldBeFalse)
}

func TestMapPointReplaceForwardsOneHop(t *testing.T) {
	store := NewMapStore()
	kfh := newTestKeyFrame(store, 2)

	oldMP := NewMapPoint(0, r3.Vector{X: 1}, kfh)
	oldH := store.AddMapPoint(oldMP)
	newMP := NewMapPoint(0, r3.Vector{X: 1.01}, kfh)
	newH := store.AddMapPoint(newMP)

	oldMP.AddObservation(kfh, 0)
	store.KeyFrame(kfh).AddMapPoint(0, oldH)

	oldMP.Replace(newH, store)

	test.That(t, oldMP.IsBad(), test.ShouldBeTrue)
	test.That(t, oldMP.GetReplaced(), test.ShouldEqual, newH)

	resolved := store.ResolveMapPoint(oldH)
	test.That(t, resolved, test.ShouldNotBeNil)
	test.That(t, resolved.ID(), test.ShouldEqual, int(newH))

	matches := store.KeyFrame(kfh).GetMapPointMatches()
	test.That(t, matches[0], test.ShouldEqual, newH)
}

func TestUpdateConnectionsAssignsParentOnFirstCall(t *testing.T) {
	store := NewMapStore()
	kf1 := newTestKeyFrame(store, 1)
	kf2 := newTestKeyFrame(store, 1)

	mp := NewMapPoint(0, r3.Vector{X: 1}, kf1)
	mph := store.AddMapPoint(mp)
	mp.AddObservation(kf1, 0)
	mp.AddObservation(kf2, 0)
	store.KeyFrame(kf1).AddMapPoint(0, mph)
	store.KeyFrame(kf2).AddMapPoint(0, mph)

	store.KeyFrame(kf2).UpdateConnections(store)

	parent, ok := store.KeyFrame(kf2).GetParent()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, parent, test.ShouldEqual, kf1)

	best := store.KeyFrame(kf1).GetBestCovisibilityKeyFrames(5)
	test.That(t, len(best), test.ShouldEqual, 1)
	test.That(t, best[0], test.ShouldEqual, kf2)
}

func TestKeyFrameSetBadFlagSkipsOrigin(t *testing.T) {
	store := NewMapStore()
	origin := newTestKeyFrame(store, 1)

	store.KeyFrame(origin).SetBadFlag(store)

	test.That(t, store.KeyFrame(origin).IsBad(), test.ShouldBeFalse)
}

func TestKeyFrameSetBadFlagErasesObservationsAndConnections(t *testing.T) {
	store := NewMapStore()
	root := newTestKeyFrame(store, 1)
	victim := newTestKeyFrame(store, 1)

	mp := NewMapPoint(0, r3.Vector{X: 1}, root)
	mph := store.AddMapPoint(mp)
	mp.AddObservation(root, 0)
	mp.AddObservation(victim, 0)
	store.KeyFrame(root).AddMapPoint(0, mph)
	store.KeyFrame(victim).AddMapPoint(0, mph)

	store.KeyFrame(victim).UpdateConnections(store)
	parent, ok := store.KeyFrame(victim).GetParent()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, parent, test.ShouldEqual, root)

	store.KeyFrame(victim).SetBadFlag(store)

	test.That(t, store.KeyFrame(victim).IsBad(), test.ShouldBeTrue)
	test.That(t, mp.NumObservations(), test.ShouldEqual, 1)
	test.That(t, len(store.KeyFrame(root).GetBestCovisibilityKeyFrames(0)), test.ShouldEqual, 0)

	rootChildren := store.KeyFrame(root).GetChilds()
	for _, ch := range rootChildren {
		test.That(t, ch, test.ShouldNotEqual, victim)
	}
}

func TestKeyFrameSetBadFlagReattachesChildrenToParent(t *testing.T) {
	store := NewMapStore()
	root := newTestKeyFrame(store, 1)
	victim := newTestKeyFrame(store, 1)
	child := newTestKeyFrame(store, 1)

	store.KeyFrame(victim).ChangeParent(root, store)
	store.KeyFrame(child).ChangeParent(victim, store)

	store.KeyFrame(victim).SetBadFlag(store)

	childParent, ok := store.KeyFrame(child).GetParent()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, childParent, test.ShouldEqual, root)

	rootChildren := store.KeyFrame(root).GetChilds()
	test.That(t, len(rootChildren), test.ShouldEqual, 1)
	test.That(t, rootChildren[0], test.ShouldEqual, child)
}

func TestResolveMapPointOnUnreplacedBadPointReturnsNil(t *testing.T) {
	store := NewMapStore()
	kfh := newTestKeyFrame(store, 1)
	mp := NewMapPoint(0, r3.Vector{}, kfh)
	mph := store.AddMapPoint(mp)

	mp.SetBadFlag(store)

	test.That(t, store.ResolveMapPoint(mph), test.ShouldBeNil)
}
