package track

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/slamtrack/rimage"
	"go.viam.com/slamtrack/rimage/transform"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// noDepth is the per-keypoint depth sentinel used for monocular frames and
// for RGB-D keypoints that fell outside the depth sensor's valid range.
const noDepth float32 = 0

// Frame is one processed camera view: extracted features, per-keypoint
// state built up over a tracking tick, and the frame's own pose estimate.
// A Frame is immutable once constructed except for the mutable per-keypoint
// slices (MapPoints, Outlier), Pose and Reference, which the engine updates
// in place across a single tick.
type Frame struct {
	ID        int64
	Timestamp int64 // unix nanos; kept as an integer since Date/time.Now are unavailable to callers driving this from fixtures.

	Gray       *rimage.GrayImage // the source intensity image, kept for ImageAligner warm-starts.
	Intrinsics *transform.PinholeCameraIntrinsics
	Distortion *transform.BrownConradyDistortion
	BF         float64
	ThDepth    float64

	KeyPoints    keypoints.KeyPoints
	Descriptors  keypoints.Descriptors
	Depth        []float32 // meters; noDepth sentinel for monocular / out-of-range
	ScaleFactors []float64

	Pose spatialmath.Pose // Tcw: world -> camera

	MapPoints []mapstore.MapPointHandle // index-aligned with KeyPoints; zero handle = empty slot
	Outlier   []bool

	Reference mapstore.KeyFrameHandle // zero handle = none
}

// NewMonocularFrame constructs a Frame with no depth information.
func NewMonocularFrame(id int64, ts int64, gray *rimage.GrayImage, kps *keypoints.OrientedKeypoints,
	intrin *transform.PinholeCameraIntrinsics, dist *transform.BrownConradyDistortion,
) *Frame {
	n := kps.NumKeyPoints()
	return &Frame{
		ID:           id,
		Timestamp:    ts,
		Gray:         gray,
		Intrinsics:   intrin,
		Distortion:   dist,
		KeyPoints:    kps.Points,
		Descriptors:  kps.Descriptors,
		Depth:        make([]float32, n),
		ScaleFactors: kps.ScaleFactors,
		MapPoints:    make([]mapstore.MapPointHandle, n),
		Outlier:      make([]bool, n),
	}
}

// NewRGBDFrame constructs a Frame with per-keypoint depth copied from
// depthMeters, which must already be in meters (no depth-map scaling factor
// is applied), and the stereo baseline-times-focal-length term bf plus the
// thDepth multiplier used for close-point thresholding.
func NewRGBDFrame(id int64, ts int64, gray *rimage.GrayImage, kps *keypoints.OrientedKeypoints,
	intrin *transform.PinholeCameraIntrinsics, dist *transform.BrownConradyDistortion,
	depthMeters []float32, bf, thDepth float64,
) *Frame {
	f := NewMonocularFrame(id, ts, gray, kps, intrin, dist)
	f.BF = bf
	f.ThDepth = thDepth
	copy(f.Depth, depthMeters)
	return f
}

// HasDepth reports whether keypoint idx carries a usable depth reading.
func (f *Frame) HasDepth(idx int) bool {
	return idx < len(f.Depth) && f.Depth[idx] > 0
}

// IsCloseDepth reports whether keypoint idx's depth is within the
// close-point threshold used by NeedNewKeyFrame and CreateNewKeyFrame.
func (f *Frame) IsCloseDepth(idx int) bool {
	return f.HasDepth(idx) && float64(f.Depth[idx]) < f.closeThreshMeters()
}

// closeThreshMeters converts the ThDepth multiplier into a distance in
// meters, matching Tracking.cc's mThDepth = mbf * ThDepth / fx.
func (f *Frame) closeThreshMeters() float64 {
	if f.Intrinsics == nil || f.Intrinsics.Fx == 0 {
		return 0
	}
	return f.BF * f.ThDepth / f.Intrinsics.Fx
}

// UnprojectStereo reconstructs the world-space position of keypoint idx from
// its depth reading and the frame's current pose, or ok=false if the
// keypoint has no usable depth.
func (f *Frame) UnprojectStereo(idx int) (pos r3.Vector, ok bool) {
	if !f.HasDepth(idx) {
		return r3.Vector{}, false
	}
	kp := f.KeyPoints[idx]
	camPt := f.Intrinsics.Unproject(kp.Point, float64(f.Depth[idx]))
	return spatialmath.Invert(f.Pose).Transform(camPt), true
}

// CameraCenter returns the frame's optical center in world coordinates.
func (f *Frame) CameraCenter() r3.Vector {
	return spatialmath.Invert(f.Pose).Point
}

// IsInFrustum tests whether map point mp is visible from f's current pose:
// in front of the camera, within the image bounds, within the point's
// scale-invariant distance range, and within viewCosThreshold of its mean
// viewing direction. On success it also records the projection on mp via
// SetTrackInView, matching Frame::isInFrustum's side effects.
func (f *Frame) IsInFrustum(mp *mapstore.MapPoint, viewCosThreshold float64) bool {
	pos := mp.WorldPos()
	camPt := f.Pose.Transform(pos)
	if camPt.Z <= 0 {
		mp.SetTrackInView(false, 0, 0, 0, 0)
		return false
	}

	px, _ := f.Intrinsics.Project(camPt)
	if !f.Intrinsics.InBounds(px) {
		mp.SetTrackInView(false, 0, 0, 0, 0)
		return false
	}

	maxDist := mp.GetMaxDistanceInvariance()
	minDist := mp.GetMinDistanceInvariance()
	po := pos.Sub(f.CameraCenter())
	dist := po.Norm()
	if dist < minDist || dist > maxDist {
		mp.SetTrackInView(false, 0, 0, 0, 0)
		return false
	}

	normal := mp.Normal()
	viewCos := po.Dot(normal) / dist
	if viewCos < viewCosThreshold {
		mp.SetTrackInView(false, 0, 0, 0, 0)
		return false
	}

	scaleLevel := f.PredictScale(dist, maxDist)
	mp.SetTrackInView(true, px.X, px.Y, viewCos, scaleLevel)
	return true
}

// PredictScale returns the pyramid octave at which a point at dist, whose
// scale-invariant max distance is maxDist, would be observed.
func (f *Frame) PredictScale(dist, maxDist float64) int {
	if dist <= 0 || len(f.ScaleFactors) == 0 {
		return 0
	}
	ratio := maxDist / dist
	logScale := math.Log(f.ScaleFactors[1])
	if len(f.ScaleFactors) < 2 || logScale == 0 {
		return 0
	}
	level := int(math.Ceil(math.Log(ratio) / logScale))
	if level < 0 {
		level = 0
	}
	if level >= len(f.ScaleFactors) {
		level = len(f.ScaleFactors) - 1
	}
	return level
}

// NumTrackedMapPoints counts non-empty, non-bad map-point slots this frame
// currently holds, optionally requiring at least minObs observations.
func (f *Frame) NumTrackedMapPoints(minObs int, store *mapstore.MapStore) int {
	count := 0
	for _, h := range f.MapPoints {
		if !h.Valid() {
			continue
		}
		mp := store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		if minObs <= 0 || mp.NumObservations() >= minObs {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of f, used to commit "previous frame" state
// without aliasing the mutable per-keypoint slices with the live frame.
func (f *Frame) Clone() *Frame {
	clone := *f
	clone.MapPoints = append([]mapstore.MapPointHandle(nil), f.MapPoints...)
	clone.Outlier = append([]bool(nil), f.Outlier...)
	clone.Depth = append([]float32(nil), f.Depth...)
	return &clone
}

// projectPoint is a small convenience wrapper kept for readability at call
// sites that only care about the pixel, not the depth.
func projectPoint(intrin *transform.PinholeCameraIntrinsics, p r3.Vector) r2.Point {
	px, _ := intrin.Project(p)
	return px
}
