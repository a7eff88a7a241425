package transform

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestProjectUnprojectRoundTrip(t *testing.T) {
	intrin := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	pt := r3.Vector{X: 0.1, Y: -0.2, Z: 2.0}

	px, depth := intrin.Project(pt)
	rebuilt := intrin.Unproject(px, depth)

	test.That(t, rebuilt.X, test.ShouldAlmostEqual, pt.X)
	test.That(t, rebuilt.Y, test.ShouldAlmostEqual, pt.Y)
	test.That(t, rebuilt.Z, test.ShouldAlmostEqual, pt.Z)
}

func TestCheckValidRejectsZeroFocalLength(t *testing.T) {
	intrin := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 0, Fy: 500}
	err := intrin.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBrownConradyUndistortIdentityWhenZero(t *testing.T) {
	d := NewBrownConradyDistortion(nil)
	x, y := d.Undistort(0.3, -0.4)
	test.That(t, x, test.ShouldAlmostEqual, 0.3)
	test.That(t, y, test.ShouldAlmostEqual, -0.4)
}
