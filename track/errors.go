package track

import "github.com/pkg/errors"

// Sentinel errors naming the tracking pipeline's failure outcomes. Engine
// does not return them: it reports these outcomes as boolean results and
// State transitions, and returns an error only when a collaborator call fails.
var (
	// ErrImageAlignFailed means the direct-method warm start against the
	// reference source did not converge.
	ErrImageAlignFailed = errors.New("image alignment failed to converge")

	// ErrInsufficientMatches means projection search stayed below threshold
	// even after widening the search radius.
	ErrInsufficientMatches = errors.New("insufficient projection matches")

	// ErrPoseOptimizationRejected means pose refinement produced too few
	// inliers to trust.
	ErrPoseOptimizationRejected = errors.New("pose optimization rejected: too few inliers")

	// ErrInitializationRejected means two-view triangulation or scene depth
	// was invalid during monocular initialization.
	ErrInitializationRejected = errors.New("initialization rejected")

	// ErrBackendBusy means SetNotStop(true) failed because the local mapper
	// had already committed to stopping.
	ErrBackendBusy = errors.New("local mapper busy, cannot insert keyframe")
)
