package track

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/slamtrack/slam/fake"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

func newPolicyTestFrame(id int64, n int) *Frame {
	kps := &keypoints.OrientedKeypoints{
		Points:       make(keypoints.KeyPoints, n),
		Descriptors:  make(keypoints.Descriptors, n),
		ScaleFactors: []float64{1, 1.2},
	}
	return NewMonocularFrame(id, 0, nil, kps, nil, nil)
}

func newPolicyTestReferenceKF(store *mapstore.MapStore, tracked int) mapstore.KeyFrameHandle {
	kps := make(keypoints.KeyPoints, tracked)
	descs := make(keypoints.Descriptors, tracked)
	kf := mapstore.NewKeyFrame(0, spatialmath.NewZeroPose(), kps, descs, []float64{1, 1.2}, nil)
	kfh := store.AddKeyFrame(kf)
	for i := 0; i < tracked; i++ {
		mp := mapstore.NewMapPoint(0, spatialmath.NewZeroPose().Point, kfh)
		mph := store.AddMapPoint(mp)
		mp.AddObservation(kfh, i)
		mp.AddObservation(mapstore.KeyFrameHandle(9999), i) // fabricate a 2nd observer so NumObservations >= nMinObs
		kf.AddMapPoint(i, mph)
	}
	return kfh
}

func TestNeedNewKeyFrameRefusesWhileLocalMapperStopped(t *testing.T) {
	store := mapstore.NewMapStore()
	refKFH := newPolicyTestReferenceKF(store, 100)
	mapper := fake.NewLocalMapper()
	mapper.SetStopped(true)

	policy := KeyframePolicy{}
	need := policy.NeedNewKeyFrame(KeyframePolicyInput{
		CurrentFrame:    newPolicyTestFrame(31, 5),
		Store:           store,
		LocalMapper:     mapper,
		ReferenceKF:     refKFH,
		LastKeyFrameID:  0,
		KeyFrameCount:   1,
		MaxFrames:       30,
		Monocular:       true,
		LocalMapInliers: 20,
	})
	test.That(t, need, test.ShouldBeFalse)
}

func TestNeedNewKeyFrameAcceptsWhenOverdueAndSparse(t *testing.T) {
	store := mapstore.NewMapStore()
	refKFH := newPolicyTestReferenceKF(store, 100)
	mapper := fake.NewLocalMapper()

	policy := KeyframePolicy{}
	need := policy.NeedNewKeyFrame(KeyframePolicyInput{
		CurrentFrame:    newPolicyTestFrame(31, 5),
		Store:           store,
		LocalMapper:     mapper,
		ReferenceKF:     refKFH,
		LastKeyFrameID:  0,
		KeyFrameCount:   1,
		MaxFrames:       30,
		Monocular:       true,
		LocalMapInliers: 20,
	})
	test.That(t, need, test.ShouldBeTrue)
}

func TestNeedNewKeyFrameRefusesWithTooFewInliers(t *testing.T) {
	store := mapstore.NewMapStore()
	refKFH := newPolicyTestReferenceKF(store, 100)
	mapper := fake.NewLocalMapper()

	policy := KeyframePolicy{}
	need := policy.NeedNewKeyFrame(KeyframePolicyInput{
		CurrentFrame:    newPolicyTestFrame(31, 5),
		Store:           store,
		LocalMapper:     mapper,
		ReferenceKF:     refKFH,
		LastKeyFrameID:  0,
		KeyFrameCount:   1,
		MaxFrames:       30,
		Monocular:       true,
		LocalMapInliers: 10, // below c2MinInliers
	})
	test.That(t, need, test.ShouldBeFalse)
}

func TestNeedNewKeyFrameGatesOnQueueLengthWhenBusy(t *testing.T) {
	store := mapstore.NewMapStore()
	refKFH := newPolicyTestReferenceKF(store, 100)

	base := KeyframePolicyInput{
		CurrentFrame:    newPolicyTestFrame(31, 5),
		Store:           store,
		ReferenceKF:     refKFH,
		LastKeyFrameID:  0,
		KeyFrameCount:   1,
		MaxFrames:       30,
		Monocular:       false,
		LocalMapInliers: 20,
	}
	policy := KeyframePolicy{}

	busyMapper := fake.NewLocalMapper()
	busyMapper.SetAcceptKeyFrames(false)
	busyMapper.SetQueueLength(localMapperQueueCapNonMono)
	base.LocalMapper = busyMapper
	test.That(t, policy.NeedNewKeyFrame(base), test.ShouldBeFalse)

	freeMapper := fake.NewLocalMapper()
	freeMapper.SetAcceptKeyFrames(false)
	freeMapper.SetQueueLength(0)
	base.LocalMapper = freeMapper
	test.That(t, policy.NeedNewKeyFrame(base), test.ShouldBeTrue)
}
