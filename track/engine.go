// Package track implements the visual tracking front-end: per-frame pose
// estimation against a map of keyframes and map points, keyframe insertion
// policy, and the state machine governing initialization, steady-state
// tracking, and recovery from tracking loss.
package track

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/slamtrack/logging"
	"go.viam.com/slamtrack/rimage"
	"go.viam.com/slamtrack/rimage/transform"
	"go.viam.com/slamtrack/slam/collab"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// State is the tracking state machine's current mode, mirroring
// Tracking::eTrackingState.
type State int

// Tracking states, in the order the state machine visits them on a clean run.
const (
	NoImagesYet State = iota
	NotInitialized
	Ok
	Lost
)

// String renders a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case NoImagesYet:
		return "NoImagesYet"
	case NotInitialized:
		return "NotInitialized"
	case Ok:
		return "Ok"
	case Lost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// Collaborators bundles every external dependency the engine calls out to.
// Each field may be a real implementation, a fake, or a client to an
// out-of-process service.
type Collaborators struct {
	FeatureExtractor collab.FeatureExtractor
	Matcher          collab.DescriptorMatcher
	Optimizer        collab.Optimizer
	Aligner          collab.ImageAligner
	MonoInit         collab.MonoInitializer
	LocalMapper      collab.LocalMapper
	LoopCloser       collab.LoopCloser
	Viewer           collab.Viewer
}

// Engine is the tracking front-end: it owns the current and previous frame,
// the motion model, the local-map cache, and the state machine, and drives
// every collaborator required to produce a pose per frame.
type Engine struct {
	Store *mapstore.MapStore

	collab      Collaborators
	logger      logging.Logger
	monocular   bool
	initializer Initializer
	policy      KeyframePolicy

	state             State
	lastProcessedState State

	current  *Frame
	last     *Frame
	motion   MotionModel
	localMap LocalMapCache
	trajectory TrajectoryLog

	reference       mapstore.KeyFrameHandle
	lastKeyFrame    mapstore.KeyFrameHandle
	lastKeyFrameID  int64
	lastRelocFrameID int64
	keyFrameCount   int64

	temporalPoints []mapstore.MapPointHandle // monocular-only VO scaffolding, deleted every tick

	nextFrameID    int64
	maxFrames      int64 // frame-rate-derived keyframe insertion cutoff
	minFrames      int64

	calibration struct {
		intrinsics *transform.PinholeCameraIntrinsics
		distortion *transform.BrownConradyDistortion
		bf         float64
		thDepth    float64
		fps        int
	}
}

// NewEngine constructs an Engine for a monocular or depth-bearing sensor. fps
// sets the keyframe insertion cadence (maxFrames = fps, minFrames = 0),
// matching Tracking's constructor deriving mMaxFrames from the camera's frame
// rate.
func NewEngine(store *mapstore.MapStore, monocular bool, collaborators Collaborators, logger logging.Logger, fps int) *Engine {
	if fps <= 0 {
		fps = 30
	}
	e := &Engine{
		Store:      store,
		collab:     collaborators,
		logger:     logger,
		monocular:  monocular,
		state:      NoImagesYet,
		lastProcessedState: NoImagesYet,
		maxFrames:  int64(fps),
		nextFrameID: 1,
	}
	e.initializer = Initializer{MonoInit: collaborators.MonoInit, Matcher: collaborators.Matcher, Optimizer: collaborators.Optimizer}
	e.calibration.fps = fps
	return e
}

// SetCalibration installs or replaces the sensor's intrinsics, distortion
// model, and stereo baseline term, mirroring Tracking::ChangeCalibration.
// Frames constructed after this call use the new calibration.
func (e *Engine) SetCalibration(intrinsics *transform.PinholeCameraIntrinsics, distortion *transform.BrownConradyDistortion, bf, thDepth float64) {
	e.calibration.intrinsics = intrinsics
	e.calibration.distortion = distortion
	e.calibration.bf = bf
	e.calibration.thDepth = thDepth
}

// LastProcessedState returns the state the most recent
// ProcessMonocular/ProcessRGBD call started its tick in (after the
// NoImagesYet to NotInitialized step), mirroring mLastProcessedState: a tick
// that ends Ok after starting Lost was recovered by relocalization.
func (e *Engine) LastProcessedState() State {
	return e.lastProcessedState
}

// State returns the engine's current tracking state.
func (e *Engine) State() State { return e.state }

// Trajectory returns the accumulated relative-pose trajectory log.
func (e *Engine) Trajectory() *TrajectoryLog { return &e.trajectory }

// ProcessMonocular runs one tracking tick for a monocular gray-scale frame
// captured at timestamp ts (unix nanoseconds), returning the camera's
// world-to-camera pose (Tcw) and whether the frame was tracked (as opposed
// to lost).
func (e *Engine) ProcessMonocular(ctx context.Context, gray *rimage.GrayImage, ts int64) (spatialmath.Pose, bool, error) {
	kps, err := e.collab.FeatureExtractor.Extract(ctx, gray)
	if err != nil {
		return spatialmath.Pose{}, false, errors.Wrap(err, "extract features")
	}
	id := e.nextFrameID
	e.nextFrameID++
	frame := NewMonocularFrame(id, ts, gray, kps, e.calibration.intrinsics, e.calibration.distortion)
	return e.process(ctx, frame)
}

// ProcessRGBD runs one tracking tick for a depth-bearing frame: gray is the
// intensity image, and depth is sampled at each extracted keypoint's pixel.
// Depth values are used as meters exactly as stored in depth; no depth-map
// scaling factor is applied here.
func (e *Engine) ProcessRGBD(ctx context.Context, gray *rimage.GrayImage, depth *rimage.DepthMap, ts int64) (spatialmath.Pose, bool, error) {
	kps, err := e.collab.FeatureExtractor.Extract(ctx, gray)
	if err != nil {
		return spatialmath.Pose{}, false, errors.Wrap(err, "extract features")
	}
	id := e.nextFrameID
	e.nextFrameID++

	depthAtKeypoint := make([]float32, kps.NumKeyPoints())
	for i, kp := range kps.Points {
		x, y := int(kp.Point.X), int(kp.Point.Y)
		if depth != nil && depth.HasData() {
			depthAtKeypoint[i] = depth.Get(x, y)
		}
	}
	frame := NewRGBDFrame(id, ts, gray, kps, e.calibration.intrinsics, e.calibration.distortion, depthAtKeypoint, e.calibration.bf, e.calibration.thDepth)
	return e.process(ctx, frame)
}

// process runs the shared per-tick algorithm for both sensor modes.
func (e *Engine) process(ctx context.Context, frame *Frame) (spatialmath.Pose, bool, error) {
	e.Store.Lock()
	defer e.Store.Unlock()

	e.current = frame
	e.healLastFrameAssociations()

	if e.state == NoImagesYet {
		e.state = NotInitialized
	}
	e.lastProcessedState = e.state

	var ok bool
	var err error
	switch e.state {
	case NotInitialized:
		ok, err = e.initialize(ctx)
	case Ok, Lost:
		ok, err = e.track(ctx)
	}
	if err != nil {
		return spatialmath.Pose{}, false, err
	}

	if !ok {
		if e.state == NotInitialized || e.state == NoImagesYet {
			// Either initialization has not produced a keyframe yet, or a
			// full reset just fired mid-tick: either way there is no
			// reference pose to log against and nothing to seed
			// motion-model/reference-keyframe tracking with next tick.
			return spatialmath.Pose{}, false, nil
		}
		e.trajectory.RepeatLast(frame.ID, frame.Timestamp)
		e.last = frame.Clone()
		return spatialmath.Pose{}, false, nil
	}

	pose := frame.Pose
	if refKF := e.Store.KeyFrame(frame.Reference); refKF != nil {
		relative := spatialmath.Compose(frame.Pose, refKF.GetPoseInverse())
		e.trajectory.Append(TrajectoryEntry{
			FrameID:      frame.ID,
			Timestamp:    frame.Timestamp,
			Reference:    frame.Reference,
			RelativePose: relative,
			Lost:         e.state == Lost,
		})
	} else {
		e.trajectory.RepeatLast(frame.ID, frame.Timestamp)
	}

	if e.collab.Viewer != nil {
		e.collab.Viewer.UpdateCameraPose(pose)
	}

	e.last = frame.Clone()
	return pose, e.state == Ok, nil
}

// healLastFrameAssociations forwards the previous frame's map-point handles
// across a single "replaced-by" hop, matching Tracking::Track's
// mLastFrame.mvpMapPoints[i] = pMP->GetReplaced() step, run before any new
// correspondence search for the current tick.
func (e *Engine) healLastFrameAssociations() {
	if e.last == nil {
		return
	}
	for i, h := range e.last.MapPoints {
		if !h.Valid() {
			continue
		}
		resolved := e.Store.ResolveMapPoint(h)
		if resolved == nil {
			e.last.MapPoints[i] = 0
			continue
		}
		e.last.MapPoints[i] = mapstore.MapPointHandle(resolved.ID())
	}
}

func (e *Engine) initialize(ctx context.Context) (bool, error) {
	if !e.monocular {
		kfh, ok := e.initializer.InitializeRGBD(e.Store, e.current)
		if !ok {
			return false, nil
		}
		return e.completeInitialization(kfh, kfh)
	}

	refKFH, curKFH, ok, err := e.initializer.TryInitializeMonocular(ctx, e.Store, e.current)
	if err != nil || !ok {
		return false, err
	}
	return e.completeInitialization(refKFH, curKFH)
}

func (e *Engine) completeInitialization(refKFH, curKFH mapstore.KeyFrameHandle) (bool, error) {
	e.reference = curKFH
	e.lastKeyFrame = curKFH
	e.lastKeyFrameID = e.current.ID
	e.keyFrameCount = int64(e.Store.KeyFramesInMap())
	if e.keyFrameCount == 0 {
		e.keyFrameCount = 1
	}

	var pts []mapstore.MapPointHandle
	for _, h := range e.Store.AllMapPoints() {
		if mp := e.Store.MapPoint(h); mp != nil && !mp.IsBad() {
			pts = append(pts, h)
		}
	}
	e.Store.SetReferenceMapPoints(pts)
	e.localMap.mapPoints = pts
	e.localMap.keyFrames = []mapstore.KeyFrameHandle{refKFH, curKFH}

	if e.collab.LocalMapper != nil {
		if err := e.collab.LocalMapper.InsertKeyFrame(context.Background(), curKFH); err != nil {
			return false, errors.Wrap(err, "insert initial keyframe")
		}
	}

	e.motion.Reset()
	e.state = Ok
	return true, nil
}

// track runs one steady-state or recovery tracking tick: coarse pose
// estimation, local-map refinement, keyframe decision, and state transition.
func (e *Engine) track(ctx context.Context) (bool, error) {
	if e.state == Lost {
		ok, err := e.relocalize(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			e.checkFullReset()
			return false, nil
		}
	} else {
		var ok bool
		var err error
		// Just after relocalization the motion model is meaningless, so the
		// reference keyframe is used even if velocity is otherwise known.
		recentReloc := e.current.ID < e.lastRelocFrameID+framesSinceRelocWindow
		if e.motion.Known() && e.last != nil && !recentReloc {
			ok, err = e.trackWithMotionModel(ctx)
			if !ok && err == nil {
				ok, err = e.trackReferenceKeyFrame(ctx)
			}
		} else {
			ok, err = e.trackReferenceKeyFrame(ctx)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			e.state = Lost
			e.checkFullReset()
			return false, nil
		}
	}

	localOK, localMapInliers, err := e.trackLocalMap(ctx)
	if err != nil {
		return false, err
	}
	if !localOK {
		e.state = Lost
		e.checkFullReset()
		return false, nil
	}
	e.state = Ok

	if e.last != nil {
		e.motion.Update(e.current.Pose, e.last.Pose)
	}
	if e.collab.Viewer != nil {
		e.collab.Viewer.UpdateCameraPose(e.current.Pose)
	}

	e.dropTemporalPoints()

	needNew := e.policy.NeedNewKeyFrame(KeyframePolicyInput{
		CurrentFrame:     e.current,
		Store:            e.Store,
		LocalMapper:      e.collab.LocalMapper,
		ReferenceKF:      e.reference,
		LastKeyFrameID:   e.lastKeyFrameID,
		LastRelocFrameID: e.lastRelocFrameID,
		KeyFrameCount:    int64(e.Store.KeyFramesInMap()),
		MaxFrames:        e.maxFrames,
		MinFrames:        e.minFrames,
		Monocular:        e.monocular,
		LocalMapInliers:  localMapInliers,
	})
	if needNew {
		if err := e.createNewKeyFrame(ctx); err != nil {
			return false, err
		}
	}
	e.sweepDeferredOutliers()

	return true, nil
}

// currentKeypoints packages the current frame's features into the shape the
// collab matcher interfaces expect.
func (e *Engine) currentKeypoints() *keypoints.OrientedKeypoints {
	return &keypoints.OrientedKeypoints{
		Points:       e.current.KeyPoints,
		Descriptors:  e.current.Descriptors,
		ScaleFactors: e.current.ScaleFactors,
	}
}

// candidatesFrom builds a projection-search candidate list from a set of
// map-point handles, dropping empty slots and tombstoned points.
func (e *Engine) candidatesFrom(handles []mapstore.MapPointHandle) []collab.CandidatePoint {
	var candidates []collab.CandidatePoint
	for _, h := range handles {
		if !h.Valid() {
			continue
		}
		mp := e.Store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		candidates = append(candidates, collab.CandidatePoint{
			Handle:      h,
			WorldPos:    mp.WorldPos(),
			Descriptor:  mp.Descriptor(),
			MinDistance: mp.GetMinDistanceInvariance(),
			MaxDistance: mp.GetMaxDistanceInvariance(),
		})
	}
	return candidates
}

// clearCurrentAssociations empties every map-point slot on the current frame,
// run before a fresh projection search replaces them.
func (e *Engine) clearCurrentAssociations() {
	for i := range e.current.MapPoints {
		e.current.MapPoints[i] = 0
		e.current.Outlier[i] = false
	}
}

// countInliers returns the number of matched map points with at least one
// observation, the acceptance metric for coarse tracking and relocalization.
func (e *Engine) countInliers() int {
	count := 0
	for _, h := range e.current.MapPoints {
		if !h.Valid() {
			continue
		}
		mp := e.Store.MapPoint(h)
		if mp == nil {
			continue
		}
		if mp.NumObservations() > 0 {
			count++
		}
	}
	return count
}

// trackReferenceKeyFrame implements the reference-keyframe tracking branch:
// a direct-method alignment against the reference keyframe's image warms up
// the pose guess, then descriptor projection search and motion-only bundle
// adjustment refine it.
func (e *Engine) trackReferenceKeyFrame(ctx context.Context) (bool, error) {
	refKF := e.Store.KeyFrame(e.reference)
	if refKF == nil {
		return false, nil
	}

	initial := spatialmath.NewZeroPose()
	if e.last != nil {
		initial = e.last.Pose
	}
	refined, ok, err := e.collab.Aligner.Align(ctx, refKF.SourceGray(), e.current.Gray, initial)
	if err != nil {
		return false, errors.Wrap(err, "align against reference keyframe")
	}
	if !ok {
		return false, nil
	}
	e.current.Pose = refined
	e.clearCurrentAssociations()

	radius := float64(projectionSearchRadius)
	candidates := e.candidatesFrom(refKF.GetMapPointMatches())
	matches, err := e.collab.Matcher.SearchByProjection(ctx, e.currentKeypoints(), e.current.MapPoints, candidates, radius)
	if err != nil {
		return false, errors.Wrap(err, "search reference keyframe by projection")
	}
	if len(matches) < minTrackingMatches {
		matches, err = e.collab.Matcher.SearchByProjection(ctx, e.currentKeypoints(), e.current.MapPoints, candidates, radius*projectionSearchWidenFactor)
		if err != nil {
			return false, errors.Wrap(err, "search reference keyframe by projection (widened)")
		}
	}
	if len(matches) < minTrackingMatches {
		return false, nil
	}
	for idx, mph := range matches {
		e.current.MapPoints[idx] = mph
	}

	if _, err := e.optimizePose(ctx, true); err != nil {
		return false, err
	}
	return e.countInliers() >= minTrackingInliers, nil
}

// trackWithMotionModel implements the constant-velocity tracking branch:
// predict the pose, warm it up with a direct-method alignment against the
// last frame's image, project the last frame's map points into the current
// one (widening the search radius once if too few matches turn up), then
// refine with motion-only bundle adjustment.
func (e *Engine) trackWithMotionModel(ctx context.Context) (bool, error) {
	predicted := e.motion.Predict(e.last.Pose)

	refined, ok, err := e.collab.Aligner.Align(ctx, e.last.Gray, e.current.Gray, predicted)
	if err != nil {
		return false, errors.Wrap(err, "align against last frame")
	}
	if !ok {
		return false, nil
	}
	e.current.Pose = refined
	e.clearCurrentAssociations()

	radius := projectionSearchRadius
	matches, err := e.searchLastFrameProjection(ctx, float64(radius))
	if err != nil {
		return false, err
	}
	if len(matches) < minTrackingMatches {
		matches, err = e.searchLastFrameProjection(ctx, float64(radius*projectionSearchWidenFactor))
		if err != nil {
			return false, err
		}
	}
	if len(matches) < minTrackingMatches {
		return false, nil
	}
	for idx, mph := range matches {
		e.current.MapPoints[idx] = mph
	}

	if _, err := e.optimizePose(ctx, true); err != nil {
		return false, err
	}
	return e.countInliers() >= minTrackingInliers, nil
}

func (e *Engine) searchLastFrameProjection(ctx context.Context, radius float64) (map[int]mapstore.MapPointHandle, error) {
	candidates := e.candidatesFrom(e.last.MapPoints)
	return e.collab.Matcher.SearchByProjection(ctx, e.currentKeypoints(), e.current.MapPoints, candidates, radius)
}

// optimizePose runs motion-only bundle adjustment over the current frame's
// 2D-3D correspondences and flags the correspondences PoseOnly deemed
// outliers. Coarse tracking (immediateSweep=true) evicts flagged slots right
// away, since the current frame is never promoted to a keyframe from those
// call sites; TrackLocalMap (immediateSweep=false) leaves them flagged so a
// keyframe created later in the same tick still captures the observation,
// and the caller sweeps them once that decision is made.
func (e *Engine) optimizePose(ctx context.Context, immediateSweep bool) (int, error) {
	points, indices := e.poseOnlyPoints()
	if len(points) == 0 {
		return 0, nil
	}
	refined, inliers, outliers, err := e.collab.Optimizer.PoseOnly(ctx, e.current.Pose, points)
	if err != nil {
		return 0, errors.Wrap(err, "pose-only optimization")
	}
	e.current.Pose = refined
	for i, idx := range indices {
		if i >= len(outliers) || !outliers[i] {
			continue
		}
		e.current.Outlier[idx] = true
		if !immediateSweep {
			continue
		}
		h := e.current.MapPoints[idx]
		e.current.MapPoints[idx] = 0
		e.current.Outlier[idx] = false
		if mp := e.Store.MapPoint(h); mp != nil {
			mp.SetLastFrameSeen(e.current.ID)
			mp.SetTrackInView(false, 0, 0, 0, 0)
		}
	}
	return inliers, nil
}

// sweepDeferredOutliers evicts every map-point slot TrackLocalMap flagged as
// an outlier but left in place, run once the keyframe-creation decision for
// this tick has already been made.
func (e *Engine) sweepDeferredOutliers() {
	for idx, isOutlier := range e.current.Outlier {
		if !isOutlier {
			continue
		}
		e.current.MapPoints[idx] = 0
		e.current.Outlier[idx] = false
	}
}

func (e *Engine) poseOnlyPoints() ([]collab.PoseOnlyPoint, []int) {
	var points []collab.PoseOnlyPoint
	var indices []int
	for i, h := range e.current.MapPoints {
		if !h.Valid() {
			continue
		}
		mp := e.Store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		points = append(points, collab.PoseOnlyPoint{
			WorldPos: mp.WorldPos(),
			Observed: e.current.KeyPoints[i].Point,
			Octave:   e.current.KeyPoints[i].Octave,
		})
		indices = append(indices, i)
	}
	return points, indices
}

// trackLocalMap implements the local-map refinement stage: rebuild the local
// keyframe/point sets, project the ones not already matched into the current
// frame, refine the pose again, and gate acceptance on the resulting inlier
// count. The returned inlier count is mnMatchesInliers: it feeds both the
// acceptance decision here and NeedNewKeyFrame's tracking-quality signal.
func (e *Engine) trackLocalMap(ctx context.Context) (bool, int, error) {
	newRef := e.localMap.UpdateLocalKeyFrames(e.current, e.Store)
	if newRef.Valid() {
		e.reference = newRef
		e.current.Reference = newRef
	} else {
		e.current.Reference = e.reference
	}
	e.localMap.UpdateLocalPoints(e.current, e.Store)
	e.Store.SetReferenceMapPoints(e.localMap.MapPoints())

	pending := e.localMap.SearchLocalPoints(e.current, e.Store)
	if len(pending) > 0 {
		radius := localMapRadiusMono
		if !e.monocular {
			radius = localMapRadiusRGBD
		}
		if e.current.ID < e.lastRelocFrameID+framesSinceRelocWindow {
			radius = localMapRadiusRecentReloc
		}
		candidates := e.candidatesFrom(pending)
		matches, err := e.collab.Matcher.SearchByProjection(ctx, e.currentKeypoints(), e.current.MapPoints, candidates, float64(radius))
		if err != nil {
			return false, 0, errors.Wrap(err, "search local points by projection")
		}
		for idx, mph := range matches {
			e.current.MapPoints[idx] = mph
			if mp := e.Store.MapPoint(mph); mp != nil {
				mp.IncreaseFound(1)
			}
		}
	}

	// Outliers PoseOnly flags here stay in place rather than being swept
	// immediately: if NeedNewKeyFrame fires below, the new keyframe should
	// still capture these observations for bundle adjustment to re-judge.
	if _, err := e.optimizePose(ctx, false); err != nil {
		return false, 0, err
	}

	inliers := 0
	for i, h := range e.current.MapPoints {
		if !h.Valid() || e.current.Outlier[i] {
			continue
		}
		if mp := e.Store.MapPoint(h); mp != nil && !mp.IsBad() {
			inliers++
			mp.IncreaseFound(1)
		}
	}

	threshold := minLocalMapInliersDefault
	// lastRelocFrameID stays zero until the first relocalization.
	if e.lastRelocFrameID > 0 && e.current.ID < e.lastRelocFrameID+e.maxFrames {
		threshold = minLocalMapInliersRecentReloc
	}
	return inliers >= threshold, inliers, nil
}

// dropTemporalPoints erases the monocular-only temporary map points created
// to help short-term tracking, since they are never observed by more than
// one keyframe and would otherwise pollute the persistent map.
func (e *Engine) dropTemporalPoints() {
	for _, h := range e.temporalPoints {
		if mp := e.Store.MapPoint(h); mp != nil {
			mp.SetBadFlag(e.Store)
		}
	}
	e.temporalPoints = e.temporalPoints[:0]
}

// createNewKeyFrame promotes the current frame to a keyframe: it builds the
// KeyFrame, hands close-but-unmatched depth points a fresh map point each
// (non-monocular only), recomputes covisibility, and hands the keyframe to
// the local mapper.
func (e *Engine) createNewKeyFrame(ctx context.Context) error {
	if e.collab.LocalMapper != nil && !e.collab.LocalMapper.SetNotStop(true) {
		return nil
	}
	defer func() {
		if e.collab.LocalMapper != nil {
			e.collab.LocalMapper.SetNotStop(false)
		}
	}()

	kf := mapstore.NewKeyFrame(0, e.current.Pose, e.current.KeyPoints, e.current.Descriptors, e.current.ScaleFactors, e.current.Gray)
	kfh := e.Store.AddKeyFrame(kf)

	for i, h := range e.current.MapPoints {
		if h.Valid() {
			if mp := e.Store.MapPoint(h); mp != nil && !mp.IsBad() {
				mp.AddObservation(kfh, i)
				kf.AddMapPoint(i, h)
				continue
			}
		}
		if e.monocular || !e.current.HasDepth(i) {
			continue
		}
		if !e.current.IsCloseDepth(i) {
			continue
		}
		pos, ok := e.current.UnprojectStereo(i)
		if !ok {
			continue
		}
		mp := mapstore.NewMapPoint(0, pos, kfh)
		mph := e.Store.AddMapPoint(mp)
		mp.AddObservation(kfh, i)
		kf.AddMapPoint(i, mph)
		mp.ComputeDistinctiveDescriptors(e.Store)
		mp.UpdateNormalAndDepth(e.Store)
		e.current.MapPoints[i] = mph
	}

	kf.UpdateConnections(e.Store)

	if e.collab.LocalMapper != nil {
		if err := e.collab.LocalMapper.InsertKeyFrame(ctx, kfh); err != nil {
			return errors.Wrap(err, "insert keyframe")
		}
	}

	e.lastKeyFrame = kfh
	e.lastKeyFrameID = e.current.ID
	e.current.Reference = kfh
	e.reference = kfh
	return nil
}

// relocalize attempts to recover tracking after loss by scanning every known
// keyframe, newest first, and running the same alignment-then-projection
// template coarse tracking uses, seeded from each candidate's own pose
// instead of the (unreliable, since tracking is lost) motion model or last
// frame.
func (e *Engine) relocalize(ctx context.Context) (bool, error) {
	all := e.Store.AllKeyFrames()
	for i := len(all) - 1; i >= 0; i-- {
		kfh := all[i]
		kf := e.Store.KeyFrame(kfh)
		if kf == nil || kf.IsBad() {
			continue
		}

		refined, ok, err := e.collab.Aligner.Align(ctx, kf.SourceGray(), e.current.Gray, kf.GetPose())
		if err != nil {
			return false, errors.Wrap(err, "relocalization alignment")
		}
		if !ok {
			continue
		}
		e.current.Pose = refined
		e.clearCurrentAssociations()

		candidates := e.candidatesFrom(kf.GetMapPointMatches())
		matches, err := e.collab.Matcher.SearchByProjection(ctx, e.currentKeypoints(), e.current.MapPoints, candidates, float64(projectionSearchRadius))
		if err != nil {
			return false, errors.Wrap(err, "relocalization search by projection")
		}
		if len(matches) < minTrackingMatches {
			continue
		}
		for idx, mph := range matches {
			e.current.MapPoints[idx] = mph
		}

		if _, err := e.optimizePose(ctx, true); err != nil {
			return false, err
		}
		if e.countInliers() < minTrackingInliers {
			continue
		}

		e.reference = kfh
		e.current.Reference = kfh
		e.lastRelocFrameID = e.current.ID
		e.motion.Reset()
		return true, nil
	}
	return false, nil
}

// checkFullReset requests a full system reset whenever a tick ends Lost with
// too little map to relocalize against, matching Tracking.cc's unconditional
// post-tracking check (run regardless of which stage of the tick failed).
func (e *Engine) checkFullReset() {
	if e.state == Lost && e.Store.KeyFramesInMap() < minKeyFramesForFullReset {
		e.Reset()
	}
}

// Reset clears the map and every piece of tracking state, mirroring
// Tracking::Reset: back-end reset requests are issued, the map is emptied,
// frame/keyframe ids restart from 1, and the state machine returns
// to NoImagesYet. If a Viewer collaborator is attached, Reset blocks briefly
// polling for it to stop before clearing state out from under it.
func (e *Engine) Reset() {
	e.logger.Info("resetting map")

	if e.collab.LocalMapper != nil {
		e.collab.LocalMapper.RequestReset()
	}
	if e.collab.LoopCloser != nil {
		e.collab.LoopCloser.RequestReset()
	}
	if e.collab.Viewer != nil {
		e.collab.Viewer.RequestStop()
		for !e.collab.Viewer.IsStopped() {
			time.Sleep(viewerStopPollIntervalMillis * time.Millisecond)
		}
	}

	e.Store.Clear()
	e.initializer.Reset()
	e.motion.Reset()
	e.trajectory.Reset()

	e.state = NoImagesYet
	e.lastProcessedState = NoImagesYet
	e.current = nil
	e.last = nil
	e.reference = 0
	e.lastKeyFrame = 0
	e.lastKeyFrameID = 0
	e.lastRelocFrameID = 0
	e.keyFrameCount = 0
	e.temporalPoints = nil
	e.nextFrameID = 1
	e.localMap.keyFrames = nil
	e.localMap.mapPoints = nil

	if e.collab.Viewer != nil {
		e.collab.Viewer.Release()
	}
}
