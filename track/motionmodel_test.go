package track

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/slamtrack/spatialmath"
)

func TestMotionModelUnknownUntilUpdate(t *testing.T) {
	var m MotionModel
	test.That(t, m.Known(), test.ShouldBeFalse)

	last := spatialmath.NewZeroPose()
	predicted := m.Predict(last)
	test.That(t, predicted, test.ShouldResemble, last)
}

func TestMotionModelPredictsConstantVelocity(t *testing.T) {
	var m MotionModel
	older := spatialmath.NewPose(r3.Vector{X: 0}, spatialmath.NewZeroPose().Orientation)
	last := spatialmath.NewPose(r3.Vector{X: 1}, spatialmath.NewZeroPose().Orientation)

	m.Update(last, older)
	test.That(t, m.Known(), test.ShouldBeTrue)

	predicted := m.Predict(last)
	test.That(t, predicted.Point.X, test.ShouldAlmostEqual, 2.0)
}

func TestMotionModelResetClearsHypothesis(t *testing.T) {
	var m MotionModel
	m.Update(spatialmath.NewPose(r3.Vector{X: 1}, spatialmath.NewZeroPose().Orientation), spatialmath.NewZeroPose())
	test.That(t, m.Known(), test.ShouldBeTrue)

	m.Reset()
	test.That(t, m.Known(), test.ShouldBeFalse)
}
