package track

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/slamtrack/slam/fake"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

func newInitTestFrameKPs(n int) *keypoints.OrientedKeypoints {
	kps := &keypoints.OrientedKeypoints{
		Points:       make(keypoints.KeyPoints, n),
		Descriptors:  make(keypoints.Descriptors, n),
		ScaleFactors: []float64{1, 1.2},
	}
	for i := 0; i < n; i++ {
		kps.Points[i] = keypoints.KeyPoint{Point: r2.Point{X: float64(i)}}
		kps.Descriptors[i] = keypoints.Descriptor{byte(i)}
	}
	return kps
}

func TestInitializeRGBDRequiresEnoughKeypoints(t *testing.T) {
	store := mapstore.NewMapStore()
	in := &Initializer{}
	f := NewRGBDFrame(1, 0, nil, newInitTestFrameKPs(10), testIntrinsics(), nil, make([]float32, 10), 0, 40)

	_, ok := in.InitializeRGBD(store, f)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, store.KeyFramesInMap(), test.ShouldEqual, 0)
}

func TestInitializeRGBDBuildsOneMapPointPerDepthPoint(t *testing.T) {
	store := mapstore.NewMapStore()
	in := &Initializer{}

	n := stereoInitMinKeyPoints + 1
	depth := make([]float32, n)
	for i := range depth {
		depth[i] = 2.0
	}
	f := NewRGBDFrame(1, 0, nil, newInitTestFrameKPs(n), testIntrinsics(), nil, depth, 0, 40)

	kfh, ok := in.InitializeRGBD(store, f)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, kfh.Valid(), test.ShouldBeTrue)
	test.That(t, store.KeyFramesInMap(), test.ShouldEqual, 1)
	test.That(t, store.MapPointsInMap(), test.ShouldEqual, n)
	test.That(t, len(store.KeyFrameOrigins()), test.ShouldEqual, 1)
}

func TestTryInitializeMonocularNeedsTwoTexturedFrames(t *testing.T) {
	store := mapstore.NewMapStore()
	in := &Initializer{MonoInit: &fake.MonoInitializer{}}

	sparse := NewMonocularFrame(1, 0, nil, newInitTestFrameKPs(10), nil, nil)
	_, _, ok, err := in.TryInitializeMonocular(context.Background(), store, sparse)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestTryInitializeMonocularTwoViewSucceeds(t *testing.T) {
	store := mapstore.NewMapStore()

	n := monoInitMinKeyPoints + 1
	points := make([]r3.Vector, n)
	triangulated := make([]bool, n)
	for i := range points {
		points[i] = r3.Vector{X: float64(i) * 0.01, Y: 0, Z: 5}
		triangulated[i] = true
	}
	monoInit := &fake.MonoInitializer{
		Points:       points,
		Triangulated: triangulated,
		RelativePose: spatialmath.NewPose(r3.Vector{X: 1}, spatialmath.NewZeroPose().Orientation),
		OK:           true,
	}
	in := &Initializer{MonoInit: monoInit, Matcher: &fake.DescriptorMatcher{}, Optimizer: &fake.Optimizer{}}

	refFrame := NewMonocularFrame(1, 0, nil, newInitTestFrameKPs(n), nil, nil)
	_, _, ok, err := in.TryInitializeMonocular(context.Background(), store, refFrame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse) // first frame only seeds the pending reference

	curFrame := NewMonocularFrame(2, 0, nil, newInitTestFrameKPs(n), nil, nil)
	refKFH, curKFH, ok, err := in.TryInitializeMonocular(context.Background(), store, curFrame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, refKFH.Valid(), test.ShouldBeTrue)
	test.That(t, curKFH.Valid(), test.ShouldBeTrue)
	test.That(t, store.KeyFramesInMap(), test.ShouldEqual, 2)
	test.That(t, store.MapPointsInMap(), test.ShouldEqual, n)
}

func TestInitializerResetClearsPending(t *testing.T) {
	in := &Initializer{MonoInit: &fake.MonoInitializer{}}
	store := mapstore.NewMapStore()
	frame := NewMonocularFrame(1, 0, nil, newInitTestFrameKPs(monoInitMinKeyPoints+1), nil, nil)
	_, _, _, _ = in.TryInitializeMonocular(context.Background(), store, frame)

	in.Reset()

	// After Reset, the next call is a first sighting again: it seeds a new
	// pending reference rather than attempting triangulation, so it reports
	// ok=false with no error even though the frame is texture-rich enough.
	_, _, ok, err := in.TryInitializeMonocular(context.Background(), store, frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}
