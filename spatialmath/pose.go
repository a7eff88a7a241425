// Package spatialmath provides the SE(3) pose algebra the tracking front-end
// composes on every frame: current pose from motion model, relative pose
// between a frame and its reference keyframe, and pose inversion for
// world<->camera conversions.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform, position plus orientation, following the same
// "camera frame from world frame" convention Tracking.cc uses for mTcw:
// applying a Pose to a point maps it from the pose's source frame into its
// target frame.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{Point: r3.Vector{}, Orientation: quat.Number{Real: 1}}
}

// NewPose builds a Pose from a translation and a unit orientation quaternion.
// The orientation is normalized defensively; composing many poses in a
// tracking loop accumulates floating point drift.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return Pose{Point: point, Orientation: normalize(orientation)}
}

// NewPoseFromRotationTranslation builds a Pose from a row-major 3x3 rotation
// matrix and a translation vector, the shape an Optimizer or MonoInitializer
// naturally produces.
func NewPoseFromRotationTranslation(rot [3][3]float64, trans r3.Vector) Pose {
	return Pose{Point: trans, Orientation: normalize(quatFromRotationMatrix(rot))}
}

// RotationMatrix returns the row-major 3x3 rotation matrix equivalent to p's
// orientation.
func (p Pose) RotationMatrix() [3][3]float64 {
	q := normalize(p.Orientation)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Transform applies p to v, mapping v from p's source frame into p's target
// frame: p.Transform(v) == R*v + t.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return rotate(p.Orientation, v).Add(p.Point)
}

// Compose returns a∘b: the transform that maps a point from b's source frame
// through b, then through a. This mirrors the plain matrix multiplication
// Tracking.cc relies on, e.g. mVelocity = mCurrentFrame.mTcw * LastTwc and
// Tcr = mCurrentFrame.mTcw * mpReferenceKF->GetPoseInverse().
func Compose(a, b Pose) Pose {
	return Pose{
		Point:       rotate(a.Orientation, b.Point).Add(a.Point),
		Orientation: normalize(quat.Mul(a.Orientation, b.Orientation)),
	}
}

// Invert returns p's inverse transform, mapping points back from p's target
// frame to its source frame.
func Invert(p Pose) Pose {
	inv := quat.Conj(normalize(p.Orientation))
	return Pose{
		Point:       rotate(inv, p.Point.Mul(-1)),
		Orientation: inv,
	}
}

// PoseAlmostEqual reports whether a and b are within tol of each other in
// both position and orientation, treating q and -q as the same orientation.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	if a.Point.Sub(b.Point).Norm() > tol {
		return false
	}
	qa, qb := normalize(a.Orientation), normalize(b.Orientation)
	diff := angularDistance(qa, qb)
	return diff <= tol
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// angularDistance returns the rotation angle, in radians, between two unit
// quaternions, invariant to the q/-q double cover.
func angularDistance(a, b quat.Number) float64 {
	d := quat.Mul(quat.Conj(a), b)
	vec := math.Sqrt(d.Imag*d.Imag + d.Jmag*d.Jmag + d.Kmag*d.Kmag)
	return 2 * math.Atan2(vec, math.Abs(d.Real))
}

// quatFromRotationMatrix converts a row-major 3x3 rotation matrix to a unit
// quaternion via Shepperd's method.
func quatFromRotationMatrix(m [3][3]float64) quat.Number {
	trace := m[0][0] + m[1][1] + m[2][2]
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1.0)
		return quat.Number{
			Real: 0.25 / s,
			Imag: (m[2][1] - m[1][2]) * s,
			Jmag: (m[0][2] - m[2][0]) * s,
			Kmag: (m[1][0] - m[0][1]) * s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[0][0]-m[1][1]-m[2][2])
		return quat.Number{
			Real: (m[2][1] - m[1][2]) / s,
			Imag: 0.25 * s,
			Jmag: (m[0][1] + m[1][0]) / s,
			Kmag: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[1][1]-m[0][0]-m[2][2])
		return quat.Number{
			Real: (m[0][2] - m[2][0]) / s,
			Imag: (m[0][1] + m[1][0]) / s,
			Jmag: 0.25 * s,
			Kmag: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := 2.0 * math.Sqrt(1.0+m[2][2]-m[0][0]-m[1][1])
		return quat.Number{
			Real: (m[1][0] - m[0][1]) / s,
			Imag: (m[0][2] + m[2][0]) / s,
			Jmag: (m[1][2] + m[2][1]) / s,
			Kmag: 0.25 * s,
		}
	}
}
