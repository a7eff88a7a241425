// Package collab defines the narrow interfaces the tracking front-end calls
// out to for everything that is not its own job: feature extraction,
// descriptor matching, pose refinement, two-view initialization, and the
// back-end (local mapping / loop closing / viewing) it hands keyframes to.
// Each interface is the same shape services/slam uses to put a real
// algorithm behind a small Go boundary: a collaborator can be an in-process
// implementation, a fake for tests, or a client to an out-of-process
// service, and the tracking engine cannot tell the difference.
package collab

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/slamtrack/rimage"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// FeatureExtractor detects and describes keypoints in a grayscale image,
// e.g. FAST corners with ORB descriptors, matching the corner/descriptor
// extraction stage Frame construction depends on in Tracking.cc.
type FeatureExtractor interface {
	Extract(ctx context.Context, gray *rimage.GrayImage) (*keypoints.OrientedKeypoints, error)
}

// CandidatePoint is a map point offered to a DescriptorMatcher as a
// projection-search candidate, carrying just the fields matching needs
// without requiring the matcher to know about mapstore's locking.
type CandidatePoint struct {
	Handle       mapstore.MapPointHandle
	WorldPos     r3.Vector
	Descriptor   keypoints.Descriptor
	MinDistance  float64
	MaxDistance  float64
	ViewCos      float64
}

// DescriptorMatcher associates a frame's keypoints with existing map points
// by projecting each candidate's world position into the frame using its
// current pose estimate and searching descriptors within a pixel radius,
// the job SearchByProjection does in Tracking.cc. The tracking front-end
// uses the same method for reference-keyframe tracking, motion-model
// tracking, local-map refinement, and relocalization — only the candidate
// set and radius change.
type DescriptorMatcher interface {
	// SearchByProjection matches candidates into frameKPs by projecting each
	// candidate's world position into the frame and searching descriptors
	// within radiusThreshold pixels, skipping keypoint indices already
	// present in alreadyMatched. It returns keypoint-index -> matched handle.
	SearchByProjection(
		ctx context.Context,
		frameKPs *keypoints.OrientedKeypoints,
		alreadyMatched []mapstore.MapPointHandle,
		candidates []CandidatePoint,
		radiusThreshold float64,
	) (map[int]mapstore.MapPointHandle, error)

	// SearchForInitialization finds putative correspondences between two
	// raw keypoint sets for two-view monocular initialization, before any
	// map points exist to project. prevMatched holds, per reference
	// keypoint, its last known pixel location in the current frame (seeded
	// from the reference frame's own keypoint positions on the first
	// attempt); a real implementation searches within windowRadius pixels
	// of that location, applies a best/second-best ratio test, and prunes
	// outliers by orientation-histogram rotation consistency, matching
	// ORBmatcher::SearchForInitialization. It updates prevMatched in place
	// with each match's resulting location, so a caller retrying against a
	// new current frame keeps the search window tight.
	SearchForInitialization(
		ctx context.Context,
		referenceKPs, currentKPs *keypoints.OrientedKeypoints,
		prevMatched []r2.Point,
		windowRadius float64,
	) ([]Correspondence, error)
}

// PoseOnlyPoint is a single 2D-3D correspondence handed to an Optimizer for
// motion-only bundle adjustment.
type PoseOnlyPoint struct {
	WorldPos r3.Vector
	Observed r2.Point
	Octave   int
}

// Optimizer refines a frame's pose from its current 2D-3D correspondences,
// the role g2o motion-only bundle adjustment plays in Tracking.cc's
// PoseOptimization calls.
type Optimizer interface {
	// PoseOnly returns a refined pose, the number of points that remained
	// inliers after optimization, and outliers index-aligned with points:
	// outliers[i] reports whether points[i] was flagged an outlier on the
	// final iteration, matching PoseOptimization's per-observation
	// mvbOutlier side effect on the frame it optimizes.
	PoseOnly(ctx context.Context, initial spatialmath.Pose, points []PoseOnlyPoint) (refined spatialmath.Pose, inliers int, outliers []bool, err error)

	// GlobalBundleAdjustment jointly refines every supplied keyframe pose and
	// map point position for the given number of iterations, the role
	// Optimizer::GlobalBundleAdjustemnt plays right after two-view monocular
	// initialization.
	GlobalBundleAdjustment(
		ctx context.Context,
		store *mapstore.MapStore,
		keyFrames []mapstore.KeyFrameHandle,
		mapPoints []mapstore.MapPointHandle,
		iterations int,
	) error
}

// ImageAligner refines an initial pose guess between two grayscale images by
// a direct method, the warm start every coarse tracking mode runs before its
// projection search. It reports ok=false, rather than an error, when the two
// images do not share enough photometric overlap to align — an expected
// outcome the caller should treat as tracking failure, not a fault.
type ImageAligner interface {
	Align(ctx context.Context, from, to *rimage.GrayImage, initial spatialmath.Pose) (refined spatialmath.Pose, ok bool, err error)
}

// Correspondence is one putative match between a reference-frame keypoint
// index and a current-frame keypoint index, handed to a MonoInitializer in a
// fixed order so its parallel result slices can be indexed unambiguously.
type Correspondence struct {
	RefIndex int
	CurIndex int
}

// MonoInitializer attempts two-view monocular initialization between a
// reference frame's keypoints and the current frame's, given a caller
// supplied putative correspondence set. It reports ok=false, rather than an
// error, when the two views are not yet separated enough to triangulate
// reliably — that is an expected outcome on most calls, not a failure.
type MonoInitializer interface {
	// Initialize returns points and triangulated index-aligned with matches:
	// points[i]/triangulated[i] correspond to matches[i].
	Initialize(
		ctx context.Context,
		referenceKPs, currentKPs *keypoints.OrientedKeypoints,
		matches []Correspondence,
	) (points []r3.Vector, triangulated []bool, relativePose spatialmath.Pose, ok bool, err error)
}

// LocalMapper is the back-end that owns keyframe culling, map point culling,
// and local bundle adjustment; the tracking front-end only ever hands it
// keyframes and checks its flow-control bits, matching the
// mpLocalMapper->AcceptKeyFrames/InsertKeyFrame/SetNotStop/isStopped surface
// Tracking.cc calls.
type LocalMapper interface {
	AcceptKeyFrames() bool
	SetAcceptKeyFrames(accept bool)
	InsertKeyFrame(ctx context.Context, kf mapstore.KeyFrameHandle) error
	InterruptBA()
	KeyframesInQueue() int
	RequestReset()
	// SetNotStop asks the local mapper not to pause for BA; it returns false
	// if the mapper is already stopped and cannot honor the request.
	SetNotStop(stop bool) bool
	IsStopped() bool
	StopRequested() bool
}

// LoopCloser is the back-end responsible for loop detection and pose-graph
// correction. Per this module's scope, only its reset hook is exercised;
// loop closing itself runs out of process or not at all.
type LoopCloser interface {
	RequestReset()
}

// Viewer is an optional rendering collaborator; the tracking engine only
// ever pushes state to it and asks whether it wants to pause tracking.
type Viewer interface {
	Release()
	RequestStop()
	IsStopped() bool
	UpdateCameraPose(pose spatialmath.Pose)
}
