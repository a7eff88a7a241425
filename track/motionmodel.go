package track

import "go.viam.com/slamtrack/spatialmath"

// MotionModel holds the constant-velocity hypothesis between consecutive
// frames: the pose delta from the last frame to the current one, used to
// seed TrackWithMotionModel's initial guess before any correspondence is
// found this tick.
type MotionModel struct {
	velocity spatialmath.Pose
	known    bool
}

// Reset clears the hypothesis, e.g. after a relocalization or a tracking loss.
func (m *MotionModel) Reset() {
	m.velocity = spatialmath.NewZeroPose()
	m.known = false
}

// Known reports whether a velocity hypothesis is currently available.
func (m *MotionModel) Known() bool {
	return m.known
}

// Velocity returns the current hypothesis; only meaningful if Known.
func (m *MotionModel) Velocity() spatialmath.Pose {
	return m.velocity
}

// Update recomputes the hypothesis from the current and last frame poses:
// velocity := Tcw_current . Twc_last.
func (m *MotionModel) Update(currentTcw, lastTcw spatialmath.Pose) {
	m.velocity = spatialmath.Compose(currentTcw, spatialmath.Invert(lastTcw))
	m.known = true
}

// Predict returns the initial pose guess for the current tick given the
// last frame's pose: velocity . Tcw_last.
func (m *MotionModel) Predict(lastTcw spatialmath.Pose) spatialmath.Pose {
	if !m.known {
		return lastTcw
	}
	return spatialmath.Compose(m.velocity, lastTcw)
}
