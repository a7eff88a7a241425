// Package fake provides scriptable in-memory collaborators implementing
// slam/collab's interfaces, for driving track.Engine in tests and small
// demos without a real feature-extraction/optimization back-end.
package fake

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/slamtrack/rimage"
	"go.viam.com/slamtrack/slam/collab"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// FeatureExtractor returns a scripted sequence of extraction results, one
// per call, repeating the last entry once the script is exhausted.
type FeatureExtractor struct {
	mu     sync.Mutex
	script []*keypoints.OrientedKeypoints
	calls  int
	Err    error
}

// NewFeatureExtractor returns a FeatureExtractor that yields script in order.
func NewFeatureExtractor(script ...*keypoints.OrientedKeypoints) *FeatureExtractor {
	return &FeatureExtractor{script: script}
}

// Extract returns the next scripted result.
func (f *FeatureExtractor) Extract(ctx context.Context, gray *rimage.GrayImage) (*keypoints.OrientedKeypoints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.script) == 0 {
		return &keypoints.OrientedKeypoints{}, nil
	}
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	return f.script[idx], nil
}

// CallCount returns the number of times Extract has been invoked.
func (f *FeatureExtractor) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// DescriptorMatcher returns a fixed projection match set regardless of input.
// SearchForInitialization runs a real nearest-Hamming-neighbor search rather
// than a scripted result, since the initialization tests exercise it against
// generated keypoint sets and want an actual correspondence set back.
type DescriptorMatcher struct {
	ProjectionResult map[int]mapstore.MapPointHandle
	Err              error
}

// SearchByProjection returns the scripted projection match set.
func (m *DescriptorMatcher) SearchByProjection(
	ctx context.Context,
	frameKPs *keypoints.OrientedKeypoints,
	alreadyMatched []mapstore.MapPointHandle,
	candidates []collab.CandidatePoint,
	radiusThreshold float64,
) (map[int]mapstore.MapPointHandle, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.ProjectionResult, nil
}

// initHammingMatchThreshold bounds the descriptor distance this stand-in
// accepts as a putative correspondence during two-view initialization.
const initHammingMatchThreshold = 50

// SearchForInitialization runs a brute-force nearest-Hamming-neighbor search
// between the two keypoint sets, standing in for the real matcher's
// ratio-test-plus-rotation-consistency search. windowRadius is accepted for
// interface conformance but not enforced, since this fake has no notion of a
// predicted pixel location to check it against. prevMatched is updated in
// place with each match's current-frame keypoint position.
func (m *DescriptorMatcher) SearchForInitialization(
	ctx context.Context,
	referenceKPs, currentKPs *keypoints.OrientedKeypoints,
	prevMatched []r2.Point,
	windowRadius float64,
) ([]collab.Correspondence, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var matches []collab.Correspondence
	usedCur := make(map[int]bool)
	for i, rd := range referenceKPs.Descriptors {
		best, bestDist := -1, 1<<30
		for j, cd := range currentKPs.Descriptors {
			if usedCur[j] {
				continue
			}
			d := hammingDist(rd, cd)
			if d < bestDist {
				bestDist, best = d, j
			}
		}
		if best >= 0 && bestDist < initHammingMatchThreshold {
			matches = append(matches, collab.Correspondence{RefIndex: i, CurIndex: best})
			usedCur[best] = true
			if i < len(prevMatched) {
				prevMatched[i] = currentKPs.Points[best].Point
			}
		}
	}
	return matches, nil
}

func hammingDist(a, b keypoints.Descriptor) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		x := a[i] ^ b[i]
		for x != 0 {
			dist += int(x & 1)
			x >>= 1
		}
	}
	return dist
}

// Optimizer returns a fixed refined pose and inlier count.
type Optimizer struct {
	RefinedPose spatialmath.Pose
	Inliers     int
	Outliers    []bool
	Err         error
}

// PoseOnly returns the scripted refined pose.
func (o *Optimizer) PoseOnly(ctx context.Context, initial spatialmath.Pose, points []collab.PoseOnlyPoint) (spatialmath.Pose, int, []bool, error) {
	if o.Err != nil {
		return spatialmath.Pose{}, 0, nil, o.Err
	}
	outliers := o.Outliers
	if outliers == nil {
		outliers = make([]bool, len(points))
	}
	return o.RefinedPose, o.Inliers, outliers, nil
}

// GlobalBundleAdjustment is a no-op; scripted tests assert on the map state
// they seeded rather than on any refinement this fake would perform.
func (o *Optimizer) GlobalBundleAdjustment(
	ctx context.Context,
	store *mapstore.MapStore,
	keyFrames []mapstore.KeyFrameHandle,
	mapPoints []mapstore.MapPointHandle,
	iterations int,
) error {
	return o.Err
}

// MonoInitializer returns a fixed two-view initialization result.
type MonoInitializer struct {
	Points       []r3.Vector
	Triangulated []bool
	RelativePose spatialmath.Pose
	OK           bool
	Err          error
}

// Initialize returns the scripted initialization result.
func (mi *MonoInitializer) Initialize(
	ctx context.Context,
	referenceKPs, currentKPs *keypoints.OrientedKeypoints,
	matches []collab.Correspondence,
) ([]r3.Vector, []bool, spatialmath.Pose, bool, error) {
	if mi.Err != nil {
		return nil, nil, spatialmath.Pose{}, false, mi.Err
	}
	return mi.Points, mi.Triangulated, mi.RelativePose, mi.OK, nil
}

// ImageAligner returns a fixed warm-start pose, or a scripted failure. It
// records the "from" image of every call, letting a test tell
// TrackWithMotionModel (aligns against the last frame) apart from
// TrackReferenceKeyFrame (aligns against the reference keyframe's image).
type ImageAligner struct {
	Pose spatialmath.Pose
	Fail bool
	Err  error

	mu    sync.Mutex
	froms []*rimage.GrayImage
}

// Align returns the scripted warm-start pose.
func (a *ImageAligner) Align(ctx context.Context, from, to *rimage.GrayImage, initial spatialmath.Pose) (spatialmath.Pose, bool, error) {
	a.mu.Lock()
	a.froms = append(a.froms, from)
	a.mu.Unlock()
	if a.Err != nil {
		return spatialmath.Pose{}, false, a.Err
	}
	if a.Fail {
		return spatialmath.Pose{}, false, nil
	}
	return a.Pose, true, nil
}

// Froms returns the "from" image argument of every Align call, in order.
func (a *ImageAligner) Froms() []*rimage.GrayImage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*rimage.GrayImage, len(a.froms))
	copy(out, a.froms)
	return out
}

// Viewer records every pose it is pushed and honors a scripted stop request,
// letting tests assert on what the tracker pushed to a rendering collaborator.
type Viewer struct {
	mu        sync.Mutex
	poses     []spatialmath.Pose
	stopAsked bool
	stopped   bool
	released  bool
}

// Release marks the viewer as released.
func (v *Viewer) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.released = true
}

// RequestStop asks the viewer to stop; the next IsStopped call reports true.
func (v *Viewer) RequestStop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopAsked = true
	v.stopped = true
}

// IsStopped reports whether the viewer has stopped.
func (v *Viewer) IsStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// UpdateCameraPose records pose for later inspection via Poses.
func (v *Viewer) UpdateCameraPose(pose spatialmath.Pose) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.poses = append(v.poses, pose)
}

// Poses returns every pose pushed to the viewer, in order.
func (v *Viewer) Poses() []spatialmath.Pose {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]spatialmath.Pose, len(v.poses))
	copy(out, v.poses)
	return out
}

// LocalMapper is a scriptable back-end stand-in: it accepts keyframes by
// default, records every one it is handed, and lets a test toggle the same
// flow-control bits the real local mapper would under load (stopped for BA,
// stop requested, queue depth) to exercise NeedNewKeyFrame's gating.
type LocalMapper struct {
	mu sync.Mutex

	accept        bool
	stopped       bool
	stopRequested bool
	notStop       bool
	queueLen      int

	inserted    []mapstore.KeyFrameHandle
	interrupted int
	resetCalled int
	Err         error
}

// NewLocalMapper returns a LocalMapper that accepts keyframes and is not
// stopped, the steady-state default.
func NewLocalMapper() *LocalMapper {
	return &LocalMapper{accept: true}
}

// AcceptKeyFrames reports whether the mapper currently accepts new keyframes.
func (l *LocalMapper) AcceptKeyFrames() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accept
}

// SetAcceptKeyFrames toggles keyframe acceptance.
func (l *LocalMapper) SetAcceptKeyFrames(accept bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accept = accept
}

// InsertKeyFrame records kf as inserted.
func (l *LocalMapper) InsertKeyFrame(ctx context.Context, kf mapstore.KeyFrameHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.inserted = append(l.inserted, kf)
	return nil
}

// InterruptBA counts the interruption request.
func (l *LocalMapper) InterruptBA() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interrupted++
}

// KeyframesInQueue returns the scripted queue depth.
func (l *LocalMapper) KeyframesInQueue() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queueLen
}

// SetQueueLength sets the scripted queue depth a test wants KeyframesInQueue
// to report.
func (l *LocalMapper) SetQueueLength(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queueLen = n
}

// RequestReset counts the request.
func (l *LocalMapper) RequestReset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetCalled++
}

// SetNotStop refuses the request once the mapper is scripted as stopped,
// matching the real mapper's behavior of not honoring SetNotStop mid-BA-pause.
func (l *LocalMapper) SetNotStop(stop bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.notStop = stop
	return true
}

// IsStopped reports the scripted stopped state.
func (l *LocalMapper) IsStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// SetStopped sets the scripted stopped state.
func (l *LocalMapper) SetStopped(stopped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = stopped
}

// StopRequested reports the scripted stop-requested state.
func (l *LocalMapper) StopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopRequested
}

// SetStopRequested sets the scripted stop-requested state.
func (l *LocalMapper) SetStopRequested(requested bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopRequested = requested
}

// ResetCount returns how many times RequestReset was called.
func (l *LocalMapper) ResetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetCalled
}

// Inserted returns every keyframe handle InsertKeyFrame has recorded, in
// order.
func (l *LocalMapper) Inserted() []mapstore.KeyFrameHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]mapstore.KeyFrameHandle, len(l.inserted))
	copy(out, l.inserted)
	return out
}

// LoopCloser records reset requests without doing anything else.
type LoopCloser struct {
	mu          sync.Mutex
	resetCalled int
}

// RequestReset counts the request.
func (l *LoopCloser) RequestReset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetCalled++
}

// ResetCount returns how many times RequestReset was called.
func (l *LoopCloser) ResetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetCalled
}
