package mapstore

import (
	"sort"
	"sync"

	"go.viam.com/slamtrack/rimage"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// KeyFrame is a frame promoted into the map: a fixed pose, its keypoints and
// descriptors, and the map points each keypoint is currently matched to.
// KeyFrame never mutates its keypoints/descriptors after construction; only
// its pose, map-point matches, and covisibility graph edges change.
type KeyFrame struct {
	mu sync.Mutex

	id   int
	pose spatialmath.Pose

	keyPoints    keypoints.KeyPoints
	descriptors  keypoints.Descriptors
	scaleFactors []float64
	sourceGray   *rimage.GrayImage // the originating frame's intensity image, for ImageAligner warm-starts

	mapPoints []MapPointHandle // index-aligned with keyPoints

	bad bool

	parent   KeyFrameHandle
	hasParent bool
	children map[KeyFrameHandle]struct{}

	connectedWeights map[KeyFrameHandle]int
	orderedConnected []KeyFrameHandle
	orderedWeights   []int

	// Per-frame tracking scratch state, matching mnTrackReferenceForFrame.
	trackReferenceForFrame int64
	fuseTargetForKeyFrame  int64
}

// NewKeyFrame constructs a KeyFrame from a frame's pose and features. id is
// assigned by the owning MapStore. gray may be nil if the caller has no use
// for image-based alignment against this keyframe.
func NewKeyFrame(id int, pose spatialmath.Pose, kps keypoints.KeyPoints, descs keypoints.Descriptors, scaleFactors []float64, gray *rimage.GrayImage) *KeyFrame {
	return &KeyFrame{
		id:               id,
		pose:             pose,
		keyPoints:        kps,
		descriptors:      descs,
		scaleFactors:     scaleFactors,
		sourceGray:       gray,
		mapPoints:        make([]MapPointHandle, len(kps)),
		children:         make(map[KeyFrameHandle]struct{}),
		connectedWeights: make(map[KeyFrameHandle]int),
	}
}

// ID returns the keyframe's stable identifier.
func (kf *KeyFrame) ID() int { return kf.id }

// SourceGray returns the intensity image the keyframe was built from, or nil
// if none was retained.
func (kf *KeyFrame) SourceGray() *rimage.GrayImage { return kf.sourceGray }

// GetPose returns the keyframe's world-to-camera pose (Tcw).
func (kf *KeyFrame) GetPose() spatialmath.Pose {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	return kf.pose
}

// SetPose updates the keyframe's world-to-camera pose.
func (kf *KeyFrame) SetPose(pose spatialmath.Pose) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	kf.pose = pose
}

// GetPoseInverse returns the keyframe's camera-to-world pose (Twc).
func (kf *KeyFrame) GetPoseInverse() spatialmath.Pose {
	return spatialmath.Invert(kf.GetPose())
}

// NumKeyPoints returns the number of keypoints this keyframe carries.
func (kf *KeyFrame) NumKeyPoints() int { return len(kf.keyPoints) }

// KeyPointAt returns the keypoint at idx.
func (kf *KeyFrame) KeyPointAt(idx int) keypoints.KeyPoint { return kf.keyPoints[idx] }

// DescriptorAt returns the descriptor at idx.
func (kf *KeyFrame) DescriptorAt(idx int) keypoints.Descriptor { return kf.descriptors[idx] }

func (kf *KeyFrame) scaleFactorAt(octave int) float64 {
	if octave < 0 || octave >= len(kf.scaleFactors) {
		return 1
	}
	return kf.scaleFactors[octave]
}

func (kf *KeyFrame) numScaleLevels() int { return len(kf.scaleFactors) }

// AddMapPoint matches keypoint idx to map point mp.
func (kf *KeyFrame) AddMapPoint(idx int, mp MapPointHandle) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if idx >= 0 && idx < len(kf.mapPoints) {
		kf.mapPoints[idx] = mp
	}
}

func (kf *KeyFrame) eraseMapPointMatch(idx int) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if idx >= 0 && idx < len(kf.mapPoints) {
		kf.mapPoints[idx] = 0
	}
}

func (kf *KeyFrame) replaceMapPointMatch(idx int, mp MapPointHandle) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if idx >= 0 && idx < len(kf.mapPoints) {
		kf.mapPoints[idx] = mp
	}
}

// GetMapPointMatches returns a copy of the keypoint-index -> map-point-handle
// matches this keyframe currently holds.
func (kf *KeyFrame) GetMapPointMatches() []MapPointHandle {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	out := make([]MapPointHandle, len(kf.mapPoints))
	copy(out, kf.mapPoints)
	return out
}

// TrackedMapPoints returns the number of matched map points observed by at
// least minObs keyframes and not tombstoned, matching KeyFrame::TrackedMapPoints.
func (kf *KeyFrame) TrackedMapPoints(minObs int, store *MapStore) int {
	matches := kf.GetMapPointMatches()
	count := 0
	for _, h := range matches {
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

// IsBad reports whether this keyframe has been tombstoned.
func (kf *KeyFrame) IsBad() bool {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	return kf.bad
}

// GetParent returns the keyframe's parent in the spanning tree.
func (kf *KeyFrame) GetParent() (KeyFrameHandle, bool) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	return kf.parent, kf.hasParent
}

// ChangeParent sets kf's spanning-tree parent, also registering kf as one of
// the parent's children.
func (kf *KeyFrame) ChangeParent(parent KeyFrameHandle, store *MapStore) {
	kf.mu.Lock()
	kf.parent = parent
	kf.hasParent = true
	kf.mu.Unlock()
	if pkf := store.KeyFrame(parent); pkf != nil {
		pkf.addChild(kf.id)
	}
}

func (kf *KeyFrame) addChild(id int) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	kf.children[KeyFrameHandle(id)] = struct{}{}
}

// GetChilds returns the keyframe's spanning-tree children.
func (kf *KeyFrame) GetChilds() []KeyFrameHandle {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	out := make([]KeyFrameHandle, 0, len(kf.children))
	for h := range kf.children {
		out = append(out, h)
	}
	return out
}

// SetTrackReferenceForFrame marks kf as already considered for the current
// tracking tick frameID, so UpdateLocalKeyFrames does not add it twice.
func (kf *KeyFrame) SetTrackReferenceForFrame(frameID int64) bool {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if kf.trackReferenceForFrame == frameID {
		return false
	}
	kf.trackReferenceForFrame = frameID
	return true
}

// UpdateConnections recomputes kf's covisibility edges from its current map
// point matches, matching KeyFrame::UpdateConnections. It also assigns kf a
// spanning-tree parent (its single strongest covisibility neighbor) the
// first time it is called, mirroring the "first connection" branch.
func (kf *KeyFrame) UpdateConnections(store *MapStore) {
	counts := make(map[KeyFrameHandle]int)
	for _, h := range kf.GetMapPointMatches() {
		if !h.Valid() {
			continue
		}
		mp := store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		for other := range mp.Observations() {
			if other == KeyFrameHandle(kf.id) {
				continue
			}
			counts[other]++
		}
	}

	const covisibilityThreshold = 15
	type weighted struct {
		h KeyFrameHandle
		w int
	}
	var ordered []weighted
	bestH := KeyFrameHandle(0)
	bestW := 0
	for h, w := range counts {
		if w > bestW {
			bestW, bestH = w, h
		}
		if w >= covisibilityThreshold {
			ordered = append(ordered, weighted{h, w})
			if other := store.KeyFrame(h); other != nil {
				other.addConnection(KeyFrameHandle(kf.id), w)
			}
		}
	}
	if len(ordered) == 0 && bestH.Valid() {
		ordered = append(ordered, weighted{bestH, bestW})
		if other := store.KeyFrame(bestH); other != nil {
			other.addConnection(KeyFrameHandle(kf.id), bestW)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].w > ordered[j].w })

	kf.mu.Lock()
	kf.connectedWeights = counts
	kf.orderedConnected = kf.orderedConnected[:0]
	kf.orderedWeights = kf.orderedWeights[:0]
	for _, ow := range ordered {
		kf.orderedConnected = append(kf.orderedConnected, ow.h)
		kf.orderedWeights = append(kf.orderedWeights, ow.w)
	}
	firstConnection := !kf.hasParent
	kf.mu.Unlock()

	// The map's first keyframe (handle 1) is the spanning-tree root and never
	// takes a parent.
	if firstConnection && bestH.Valid() && kf.id != 1 {
		kf.ChangeParent(bestH, store)
	}
}

func (kf *KeyFrame) addConnection(other KeyFrameHandle, weight int) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	kf.connectedWeights[other] = weight
	for i, h := range kf.orderedConnected {
		if h == other {
			kf.orderedConnected = append(kf.orderedConnected[:i], kf.orderedConnected[i+1:]...)
			kf.orderedWeights = append(kf.orderedWeights[:i], kf.orderedWeights[i+1:]...)
			break
		}
	}
	pos := sort.Search(len(kf.orderedWeights), func(i int) bool { return kf.orderedWeights[i] < weight })
	kf.orderedConnected = append(kf.orderedConnected, 0)
	copy(kf.orderedConnected[pos+1:], kf.orderedConnected[pos:])
	kf.orderedConnected[pos] = other
	kf.orderedWeights = append(kf.orderedWeights, 0)
	copy(kf.orderedWeights[pos+1:], kf.orderedWeights[pos:])
	kf.orderedWeights[pos] = weight
}

func (kf *KeyFrame) eraseConnection(other KeyFrameHandle) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if _, ok := kf.connectedWeights[other]; !ok {
		return
	}
	delete(kf.connectedWeights, other)
	for i, h := range kf.orderedConnected {
		if h == other {
			kf.orderedConnected = append(kf.orderedConnected[:i], kf.orderedConnected[i+1:]...)
			kf.orderedWeights = append(kf.orderedWeights[:i], kf.orderedWeights[i+1:]...)
			break
		}
	}
}

func (kf *KeyFrame) weightTo(other KeyFrameHandle) int {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	return kf.connectedWeights[other]
}

func (kf *KeyFrame) eraseChild(h KeyFrameHandle) {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	delete(kf.children, h)
}

// GetBestCovisibilityKeyFrames returns up to n keyframes with the strongest
// covisibility edges to kf, strongest first.
func (kf *KeyFrame) GetBestCovisibilityKeyFrames(n int) []KeyFrameHandle {
	kf.mu.Lock()
	defer kf.mu.Unlock()
	if n <= 0 || n > len(kf.orderedConnected) {
		n = len(kf.orderedConnected)
	}
	out := make([]KeyFrameHandle, n)
	copy(out, kf.orderedConnected[:n])
	return out
}

// SetBadFlag tombstones kf: it erases kf's observation from every map point
// it matched, removes kf from its covisibility neighbors' graphs, and
// reattaches its spanning-tree children to a surviving covisibility
// neighbor shared with an already-reattached ancestor, falling back to kf's
// own parent once no such neighbor exists, mirroring KeyFrame::SetBadFlag.
// A keyframe with no parent — the origin of its spanning tree — is never
// tombstoned, matching the mnId==0 guard in the same method.
func (kf *KeyFrame) SetBadFlag(store *MapStore) {
	parent, hasParent := kf.GetParent()
	if !hasParent {
		return
	}
	kfh := KeyFrameHandle(kf.id)

	for _, h := range kf.GetBestCovisibilityKeyFrames(0) {
		if other := store.KeyFrame(h); other != nil {
			other.eraseConnection(kfh)
		}
	}
	for _, h := range kf.GetMapPointMatches() {
		if !h.Valid() {
			continue
		}
		if mp := store.MapPoint(h); mp != nil {
			mp.EraseObservation(kfh)
		}
	}
	if pkf := store.KeyFrame(parent); pkf != nil {
		pkf.eraseChild(kfh)
	}

	children := kf.GetChilds()
	candidates := map[KeyFrameHandle]struct{}{parent: {}}
	for len(children) > 0 {
		var remaining []KeyFrameHandle
		reassignedAny := false
		for _, childH := range children {
			child := store.KeyFrame(childH)
			if child == nil {
				continue
			}
			bestH := KeyFrameHandle(0)
			bestW := -1
			for _, candH := range child.GetBestCovisibilityKeyFrames(0) {
				if _, ok := candidates[candH]; !ok {
					continue
				}
				if w := child.weightTo(candH); w > bestW {
					bestW, bestH = w, candH
				}
			}
			if bestH.Valid() {
				child.ChangeParent(bestH, store)
				candidates[childH] = struct{}{}
				reassignedAny = true
			} else {
				remaining = append(remaining, childH)
			}
		}
		if !reassignedAny {
			for _, childH := range remaining {
				if child := store.KeyFrame(childH); child != nil {
					child.ChangeParent(parent, store)
				}
			}
			break
		}
		children = remaining
	}

	kf.mu.Lock()
	kf.bad = true
	kf.mapPoints = nil
	kf.connectedWeights = nil
	kf.orderedConnected = nil
	kf.orderedWeights = nil
	kf.mu.Unlock()
}

// ComputeSceneMedianDepth returns the median depth, along the qth axis of the
// keyframe's rotation (2 = optical axis / Z), of every matched map point, the
// scale reference monocular initialization normalizes against.
func (kf *KeyFrame) ComputeSceneMedianDepth(q int, store *MapStore) float64 {
	matches := kf.GetMapPointMatches()
	depths := make([]float64, 0, len(matches))
	pose := kf.GetPose()
	rot := pose.RotationMatrix()
	trans := [3]float64{pose.Point.X, pose.Point.Y, pose.Point.Z}

	for _, h := range matches {
		if !h.Valid() {
			continue
		}
		mp := store.MapPoint(h)
		if mp == nil {
			continue
		}
		p := mp.WorldPos()
		depth := rot[q][0]*p.X + rot[q][1]*p.Y + rot[q][2]*p.Z + trans[q]
		depths = append(depths, depth)
	}
	if len(depths) == 0 {
		return -1
	}
	sort.Float64s(depths)
	return depths[(len(depths)-1)/2]
}
