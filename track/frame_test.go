package track

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/slamtrack/rimage/transform"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

func testIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
}

func TestRGBDFrameUnprojectsDepth(t *testing.T) {
	kps := &keypoints.OrientedKeypoints{
		Points:       keypoints.KeyPoints{{Point: r2.Point{X: 320, Y: 240}}},
		Descriptors:  keypoints.Descriptors{{0x01}},
		ScaleFactors: []float64{1, 1.2},
	}
	intrin := testIntrinsics()
	f := NewRGBDFrame(1, 0, nil, kps, intrin, nil, []float32{2.0}, intrin.BF(), 40)
	f.Pose = spatialmath.NewZeroPose()

	test.That(t, f.HasDepth(0), test.ShouldBeTrue)
	pos, ok := f.UnprojectStereo(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pos.Z, test.ShouldAlmostEqual, 2.0)
}

func TestFrameCloneDoesNotAliasSlices(t *testing.T) {
	kps := &keypoints.OrientedKeypoints{
		Points:       keypoints.KeyPoints{{}, {}},
		Descriptors:  keypoints.Descriptors{{0x01}, {0x02}},
		ScaleFactors: []float64{1},
	}
	f := NewMonocularFrame(1, 0, nil, kps, nil, nil)
	f.MapPoints[0] = 5

	clone := f.Clone()
	clone.MapPoints[0] = 9

	test.That(t, f.MapPoints[0], test.ShouldEqual, mapstore.MapPointHandle(5))
	test.That(t, clone.MapPoints[0], test.ShouldEqual, mapstore.MapPointHandle(9))
}

func TestIsInFrustumRejectsBehindCamera(t *testing.T) {
	kps := &keypoints.OrientedKeypoints{ScaleFactors: []float64{1, 1.2}}
	intrin := testIntrinsics()
	f := NewMonocularFrame(1, 0, nil, kps, intrin, nil)
	f.Pose = spatialmath.NewZeroPose()

	mp := mapstore.NewMapPoint(1, r3.Vector{X: 0, Y: 0, Z: -5}, 1)
	test.That(t, f.IsInFrustum(mp, 0.5), test.ShouldBeFalse)
	test.That(t, mp.TrackInView(), test.ShouldBeFalse)
}
