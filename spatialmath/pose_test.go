package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestComposeWithIdentity(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, quat.Number{Real: 0, Imag: 1})
	id := NewZeroPose()

	test.That(t, PoseAlmostEqual(Compose(id, p), p, 1e-9), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(p, id), p, 1e-9), test.ShouldBeTrue)
}

func TestComposeInvertRoundTrip(t *testing.T) {
	rot := quat.Number{Real: math.Sqrt(2) / 2, Kmag: math.Sqrt(2) / 2} // 90deg about Z
	p := NewPose(r3.Vector{X: 5, Y: -1, Z: 0.5}, rot)

	roundTrip := Compose(Invert(p), p)
	test.That(t, PoseAlmostEqual(roundTrip, NewZeroPose(), 1e-9), test.ShouldBeTrue)
}

func TestVelocityComposition(t *testing.T) {
	// Mirrors mVelocity = CurrentFrame.Tcw * LastFrame.GetPoseInverse():
	// composing a world->camera pose with a camera->world pose yields the
	// relative motion between the two camera frames.
	lastTcw := NewPose(r3.Vector{X: 0, Y: 0, Z: 1}, quat.Number{Real: 1})
	curTcw := NewPose(r3.Vector{X: 0, Y: 0, Z: 2}, quat.Number{Real: 1})

	velocity := Compose(curTcw, Invert(lastTcw))
	test.That(t, velocity.Point.Z, test.ShouldAlmostEqual, 1.0)

	predicted := Compose(velocity, lastTcw)
	test.That(t, PoseAlmostEqual(predicted, curTcw, 1e-9), test.ShouldBeTrue)
}

func TestTransformPoint(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 0, Z: 0}, quat.Number{Real: 1})
	out := p.Transform(r3.Vector{X: 0, Y: 0, Z: 0})
	test.That(t, out, test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 0})
}

func TestRotationMatrixRoundTrip(t *testing.T) {
	rot := quat.Number{Real: math.Sqrt(2) / 2, Imag: math.Sqrt(2) / 2}
	p := NewPose(r3.Vector{}, rot)
	m := p.RotationMatrix()

	rebuilt := NewPoseFromRotationTranslation(m, r3.Vector{})
	test.That(t, PoseAlmostEqual(rebuilt, p, 1e-9), test.ShouldBeTrue)
}

func TestPoseAlmostEqualIgnoresDoubleCover(t *testing.T) {
	q := quat.Number{Real: math.Sqrt(2) / 2, Jmag: math.Sqrt(2) / 2}
	a := NewPose(r3.Vector{X: 1}, q)
	b := NewPose(r3.Vector{X: 1}, quat.Scale(-1, q))

	test.That(t, PoseAlmostEqual(a, b, 1e-9), test.ShouldBeTrue)
}
