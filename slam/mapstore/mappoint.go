package mapstore

import (
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/slamtrack/vision/keypoints"
)

// MapPoint is a triangulated 3D landmark and its observations across
// keyframes, the equivalent of ORB-SLAM's MapPoint. Every field access goes
// through the mutex: MapPoint is shared between the tracking goroutine and
// whatever LocalMapper collaborator is culling/refining it concurrently.
type MapPoint struct {
	mu sync.Mutex

	id        int
	firstKF   KeyFrameHandle
	worldPos  r3.Vector
	normal    r3.Vector
	descriptor keypoints.Descriptor

	observations map[KeyFrameHandle]int // keyframe -> index into that keyframe's keypoints

	minDistance float64
	maxDistance float64

	visible int
	found   int

	bad        bool
	replacedBy MapPointHandle

	// Per-frame tracking scratch state, reset and reused every tick by
	// SearchLocalPoints/TrackLocalMap rather than allocated fresh.
	trackReferenceForFrame int64
	lastFrameSeen          int64
	trackInView            bool
	trackProjX             float64
	trackProjY             float64
	trackScaleLevel        int
	trackViewCos           float64
}

// NewMapPoint constructs a MapPoint with the given world position, first
// observing keyframe, and id (assigned by the owning MapStore).
func NewMapPoint(id int, pos r3.Vector, firstKF KeyFrameHandle) *MapPoint {
	return &MapPoint{
		id:           id,
		firstKF:      firstKF,
		worldPos:     pos,
		observations: make(map[KeyFrameHandle]int),
		visible:      1,
		found:        1,
	}
}

// ID returns the map point's stable identifier.
func (mp *MapPoint) ID() int { return mp.id }

// FirstKeyFrame returns the keyframe that first observed this point.
func (mp *MapPoint) FirstKeyFrame() KeyFrameHandle { return mp.firstKF }

// WorldPos returns the point's current 3D position.
func (mp *MapPoint) WorldPos() r3.Vector {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.worldPos
}

// SetWorldPos updates the point's 3D position, e.g. after bundle adjustment.
func (mp *MapPoint) SetWorldPos(pos r3.Vector) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.worldPos = pos
}

// Descriptor returns the point's representative descriptor.
func (mp *MapPoint) Descriptor() keypoints.Descriptor {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.descriptor
}

// AddObservation records that keyframe kf observes this point at keypoint
// index idx within kf.
func (mp *MapPoint) AddObservation(kf KeyFrameHandle, idx int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.observations[kf] = idx
}

// EraseObservation removes kf's observation of this point.
func (mp *MapPoint) EraseObservation(kf KeyFrameHandle) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	delete(mp.observations, kf)
}

// Observations returns a copy of the keyframe -> keypoint-index observation map.
func (mp *MapPoint) Observations() map[KeyFrameHandle]int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make(map[KeyFrameHandle]int, len(mp.observations))
	for k, v := range mp.observations {
		out[k] = v
	}
	return out
}

// NumObservations returns the number of keyframes observing this point.
func (mp *MapPoint) NumObservations() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.observations)
}

// IncreaseVisible bumps the "times this point was predicted visible" counter,
// the denominator of GetFoundRatio.
func (mp *MapPoint) IncreaseVisible(n int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.visible += n
}

// IncreaseFound bumps the "times this point was actually matched" counter.
func (mp *MapPoint) IncreaseFound(n int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.found += n
}

// GetFoundRatio returns found/visible, the culling test a new map point
// must pass within its probation window to survive.
func (mp *MapPoint) GetFoundRatio() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.visible == 0 {
		return 0
	}
	return float64(mp.found) / float64(mp.visible)
}

// IsBad reports whether this point has been tombstoned.
func (mp *MapPoint) IsBad() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.bad
}

// GetReplaced returns the handle this point was replaced by, or the zero
// handle if it has not been replaced.
func (mp *MapPoint) GetReplaced() MapPointHandle {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.replacedBy
}

// setBad tombstones the point in place; observers still holding a handle to
// it see IsBad() flip rather than dereferencing a freed object.
func (mp *MapPoint) setBad() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.bad = true
	mp.observations = nil
}

// SetBadFlag tombstones mp and removes it from every keyframe that observed
// it, mirroring MapPoint::SetBadFlag.
func (mp *MapPoint) SetBadFlag(store *MapStore) {
	obs := mp.Observations()
	mp.setBad()
	for kfh, idx := range obs {
		if kf := store.KeyFrame(kfh); kf != nil {
			kf.eraseMapPointMatch(idx)
		}
	}
}

// setReplacedBy records the one-hop forwarding pointer used by
// store.ResolveMapPoint; it does not walk or update any deeper chain.
func (mp *MapPoint) setReplacedBy(h MapPointHandle) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.replacedBy = h
}

// Replace merges mp into the point at replacement, moving every observation
// over and tombstoning mp, matching MapPoint::Replace. Observations that
// already exist on the replacement keyframe are dropped rather than
// duplicated.
func (mp *MapPoint) Replace(replacement MapPointHandle, store *MapStore) {
	if !replacement.Valid() {
		return
	}
	replacementMP := store.MapPoint(replacement)
	if replacementMP == nil || replacementMP.id == mp.id {
		return
	}

	obs := mp.Observations()
	visible, found := mp.visible, mp.found
	mp.setBad()
	mp.setReplacedBy(replacement)

	for kfh, idx := range obs {
		kf := store.KeyFrame(kfh)
		if kf == nil {
			continue
		}
		if existingIdx, has := replacementMP.Observations()[kfh]; has {
			_ = existingIdx
			kf.eraseMapPointMatch(idx)
			continue
		}
		kf.replaceMapPointMatch(idx, replacement)
		replacementMP.AddObservation(kfh, idx)
	}
	replacementMP.IncreaseVisible(visible)
	replacementMP.IncreaseFound(found)
	replacementMP.ComputeDistinctiveDescriptors(store)
}

// ComputeDistinctiveDescriptors recomputes the point's representative
// descriptor as the observation with the smallest median Hamming distance
// to every other observation, matching MapPoint::ComputeDistinctiveDescriptors.
func (mp *MapPoint) ComputeDistinctiveDescriptors(store *MapStore) {
	obs := mp.Observations()
	if len(obs) == 0 {
		return
	}

	descs := make([]keypoints.Descriptor, 0, len(obs))
	for kfh, idx := range obs {
		kf := store.KeyFrame(kfh)
		if kf == nil || kf.IsBad() {
			continue
		}
		if d := kf.DescriptorAt(idx); d != nil {
			descs = append(descs, d)
		}
	}
	if len(descs) == 0 {
		return
	}

	n := len(descs)
	dists := make([][]int, n)
	for i := range dists {
		dists[i] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		dists[i][i] = 0
		for j := i + 1; j < n; j++ {
			d := hammingDistance(descs[i], descs[j])
			dists[i][j] = d
			dists[j][i] = d
		}
	}

	bestMedian := 1 << 30
	bestIdx := 0
	for i := 0; i < n; i++ {
		row := append([]int(nil), dists[i]...)
		median := medianOf(row)
		if median < bestMedian {
			bestMedian = median
			bestIdx = i
		}
	}

	mp.mu.Lock()
	mp.descriptor = descs[bestIdx]
	mp.mu.Unlock()
}

// UpdateNormalAndDepth recomputes the point's mean viewing direction and its
// scale-invariant distance range from every observing keyframe, matching
// MapPoint::UpdateNormalAndDepth.
func (mp *MapPoint) UpdateNormalAndDepth(store *MapStore) {
	obs := mp.Observations()
	if len(obs) == 0 {
		return
	}
	pos := mp.WorldPos()

	var normal r3.Vector
	var refKF KeyFrameHandle
	var refIdx int
	first := true
	for kfh, idx := range obs {
		kf := store.KeyFrame(kfh)
		if kf == nil || kf.IsBad() {
			continue
		}
		center := kf.GetPoseInverse().Point
		dir := pos.Sub(center)
		n := dir.Norm()
		if n == 0 {
			continue
		}
		normal = normal.Add(dir.Mul(1 / n))
		if first {
			refKF, refIdx = kfh, idx
			first = false
		}
	}
	if first {
		return
	}
	normal = normal.Mul(1 / float64(len(obs)))

	refKFObj := store.KeyFrame(refKF)
	kp := refKFObj.KeyPointAt(refIdx)
	dist := pos.Sub(refKFObj.GetPoseInverse().Point).Norm()
	scaleFactor := refKFObj.scaleFactorAt(kp.Octave)
	levelsCount := refKFObj.numScaleLevels()

	mp.mu.Lock()
	mp.maxDistance = dist * scaleFactor
	mp.minDistance = mp.maxDistance / refKFObj.scaleFactorAt(levelsCount - 1)
	mp.normal = normal
	mp.mu.Unlock()
}

// Normal returns the point's mean viewing direction across its observations.
func (mp *MapPoint) Normal() r3.Vector {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.normal
}

// GetMinDistanceInvariance returns the nearest distance, times a safety
// margin, at which this point remains scale-consistent to match.
func (mp *MapPoint) GetMinDistanceInvariance() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return 0.8 * mp.minDistance
}

// GetMaxDistanceInvariance returns the farthest distance, times a safety
// margin, at which this point remains scale-consistent to match.
func (mp *MapPoint) GetMaxDistanceInvariance() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return 1.2 * mp.maxDistance
}

// SetTrackReferenceForFrame marks mp as already considered for tracking-scratch
// bookkeeping during frame id frameID, returning false if it was already marked.
func (mp *MapPoint) SetTrackReferenceForFrame(frameID int64) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.trackReferenceForFrame == frameID {
		return false
	}
	mp.trackReferenceForFrame = frameID
	return true
}

// LastFrameSeen returns the id of the last frame this point was marked seen in.
func (mp *MapPoint) LastFrameSeen() int64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.lastFrameSeen
}

// SetLastFrameSeen records frameID as the last frame this point was marked seen in.
func (mp *MapPoint) SetLastFrameSeen(frameID int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.lastFrameSeen = frameID
}

// TrackInView reports whether SetTrackInView(true, ...) was last called for
// this tick's frustum test.
func (mp *MapPoint) TrackInView() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.trackInView
}

// SetTrackInView records this tick's frustum-test result and, when in view,
// the projection/scale/view-cosine values SearchLocalPoints needs.
func (mp *MapPoint) SetTrackInView(inView bool, projX, projY, viewCos float64, scaleLevel int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.trackInView = inView
	mp.trackProjX = projX
	mp.trackProjY = projY
	mp.trackViewCos = viewCos
	mp.trackScaleLevel = scaleLevel
}

// TrackProjection returns this tick's projected pixel and predicted scale
// level, valid only when TrackInView is true.
func (mp *MapPoint) TrackProjection() (x, y float64, scaleLevel int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.trackProjX, mp.trackProjY, mp.trackScaleLevel
}

func medianOf(vals []int) int {
	// insertion sort: descriptor comparison lists are small (a handful of
	// observations per point), not worth pulling in sort for.
	for i := 1; i < len(vals); i++ {
		v := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > v {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = v
	}
	return vals[len(vals)/2]
}

func hammingDistance(a, b keypoints.Descriptor) int {
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
