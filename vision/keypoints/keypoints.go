// Package keypoints holds the keypoint and descriptor value types the
// tracking front-end exchanges with an external FeatureExtractor. Extraction
// itself (FAST corners, ORB descriptors, orientation) is a collaborator's
// job, not this module's.
package keypoints

import "github.com/golang/geo/r2"

// KeyPoint is a detected image-space feature location, with the scale octave
// it was detected at and its dominant orientation, matching the fields
// Tracking.cc reads off cv::KeyPoint (pt, octave, angle).
type KeyPoint struct {
	Point  r2.Point
	Octave int
	Angle  float64
}

// KeyPoints is a set of detected keypoints, index-aligned with a Descriptors
// slice and with the MapPoint associations a Frame tracks.
type KeyPoints []KeyPoint

// Descriptor is a single feature descriptor, opaque to the tracking
// front-end beyond its use as a DescriptorMatcher input; ORB descriptors are
// 32 bytes, but nothing here assumes a fixed length.
type Descriptor []byte

// Descriptors is a set of descriptors, index-aligned with a KeyPoints slice.
type Descriptors []Descriptor

// OrientedKeypoints pairs keypoints with per-octave scale factors, the
// pyramid metadata TrackReferenceKeyFrame and TrackWithMotionModel need to
// pick correct search radii when matching across octaves.
type OrientedKeypoints struct {
	Points        KeyPoints
	Descriptors   Descriptors
	ScaleFactors  []float64
	InvScaleFactors []float64
}

// NumKeyPoints returns the number of keypoints, or zero for a nil receiver.
func (ok *OrientedKeypoints) NumKeyPoints() int {
	if ok == nil {
		return 0
	}
	return len(ok.Points)
}
