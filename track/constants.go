package track

// Numeric thresholds carried over unchanged from the ported algorithm.
// These are not user-configurable; they are the algorithm's own constants,
// the same way Tracking.cc hardcodes them rather than reading them from the
// calibration file.
const (
	// projectionSearchRadius is the default pixel radius (τ) for projection
	// search in TrackReferenceKeyFrame/TrackWithMotionModel.
	projectionSearchRadius = 8
	// projectionSearchWidenFactor is applied once if the first attempt at
	// projectionSearchRadius returns too few matches.
	projectionSearchWidenFactor = 2
	// minTrackingMatches is the minimum projection-match count required
	// before pose optimization is attempted.
	minTrackingMatches = 20
	// minTrackingInliers is the minimum post-optimization inlier count for
	// TrackReferenceKeyFrame/TrackWithMotionModel to report success.
	minTrackingInliers = 10

	// localMapRadiusMono/RGBD are the local-map projection search radii.
	localMapRadiusMono = 1
	localMapRadiusRGBD = 3
	// localMapRadiusRecentReloc widens the local-map search just after a
	// relocalization, when pose confidence is lower.
	localMapRadiusRecentReloc = 5
	// framesSinceRelocWindow bounds how many frames "recent relocalization"
	// covers for coarse-mode selection and the widened local-map search
	// radius. mnLastRelocFrameId is set to the relocalizing frame's own id,
	// so this must span that frame and the one after it. TrackLocalMap's
	// acceptance-threshold rule uses a separate, much wider window: e.maxFrames.
	framesSinceRelocWindow = 2

	// minLocalMapInliersRecentReloc/Default are TrackLocalMap's acceptance
	// thresholds; the RecentReloc one applies only after a relocalization.
	minLocalMapInliersRecentReloc = 50
	minLocalMapInliersDefault     = 30

	// maxLocalKeyFrames bounds the size of the local keyframe set.
	maxLocalKeyFrames = 80
	// bestCovisibilityNeighbors bounds the covisibility expansion per seed
	// keyframe considered when growing the local map.
	bestCovisibilityNeighbors = 10

	// frustumViewCosThreshold is the minimum cosine of the viewing angle for
	// a map point to be considered visible from a candidate pose.
	frustumViewCosThreshold = 0.5

	// closeTrackedCap/nonTrackedCloseCap gate NeedNewKeyFrame's "need to insert
	// close points" signal for stereo/RGBD.
	closeTrackedCap    = 100
	nonTrackedCloseCap = 70

	// refRatioDefault/FewKFs/Monocular are NeedNewKeyFrame's inlier
	// ratio thresholds against the reference keyframe's tracked count.
	refRatioDefault    = 0.75
	refRatioFewKFs     = 0.4
	refRatioMonocular  = 0.9
	fewKeyFramesCutoff = 2

	// c1cInlierRatio and c2MinInliers gate NeedNewKeyFrame's c1c/c2 conditions.
	c1cInlierRatio = 0.25
	c2MinInliers   = 15

	// localMapperQueueCapNonMono bounds how many pending keyframes a busy,
	// non-monocular local mapper may have before new keyframe requests are
	// suppressed.
	localMapperQueueCapNonMono = 3

	// monoInitMinKeyPoints/stereoInitMinKeyPoints gate Initializer entry.
	monoInitMinKeyPoints   = 100
	stereoInitMinKeyPoints = 500

	// monoInitMinMatches is the minimum putative-match count required before
	// attempting two-view geometric initialization.
	monoInitMinMatches = 100

	// monoInitMinTrackedPoints gates scale normalization on the current
	// keyframe's tracked-point count.
	monoInitMinTrackedPoints = 100

	// monoInitSearchRadius is the pixel window SearchForInitialization
	// searches around each reference keypoint's predicted location during
	// two-view monocular initialization.
	monoInitSearchRadius = 100

	// globalBAIterations is the iteration budget for the one-shot bundle
	// adjustment run right after monocular initialization.
	globalBAIterations = 20

	// minKeyFramesForFullReset is the map-size cutoff below which a Lost
	// state with too few keyframes triggers a full system reset instead of
	// waiting for relocalization.
	minKeyFramesForFullReset = 6

	// recentRelocSuppressionWindow records that NeedNewKeyFrame's suppression
	// clause uses maxFrames itself as the "still close to a relocalization"
	// window; the clause reads MaxFrames directly and does not reference it.
	recentRelocSuppressionWindow = 1 // multiplier on maxFrames.

	// viewerStopPollIntervalMillis is the poll period, in milliseconds, Reset uses while waiting for
	// an optional Viewer collaborator to stop.
	viewerStopPollIntervalMillis = 3
)
