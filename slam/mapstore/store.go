package mapstore

import "sync"

// MapStore is the arena owning every KeyFrame and MapPoint, plus the
// map-update lock the tracking front-end holds for the duration of a
// tracking tick (matching Map::mMutexMapUpdate, taken as a unique_lock at
// the top of Tracking::Track). Fine-grained per-object mutexes on KeyFrame
// and MapPoint nest under this one.
type MapStore struct {
	updateMu sync.RWMutex

	mu         sync.Mutex
	keyFrames  []*KeyFrame // index 0 unused; handle == index
	mapPoints  []*MapPoint

	referenceMapPoints []MapPointHandle
	keyFrameOrigins    []KeyFrameHandle
}

// NewMapStore returns an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{
		keyFrames: make([]*KeyFrame, 1), // slot 0 reserved as the invalid handle
		mapPoints: make([]*MapPoint, 1),
	}
}

// Lock acquires the map-update mutex for exclusive access, held for the
// duration of a tracking tick.
func (s *MapStore) Lock() { s.updateMu.Lock() }

// Unlock releases the map-update mutex.
func (s *MapStore) Unlock() { s.updateMu.Unlock() }

// RLock acquires the map-update mutex for shared/read access, e.g. by a
// Viewer collaborator rendering the current map alongside a running tracker.
func (s *MapStore) RLock() { s.updateMu.RLock() }

// RUnlock releases a shared map-update lock.
func (s *MapStore) RUnlock() { s.updateMu.RUnlock() }

// AddKeyFrame inserts kf into the arena and returns its handle. kf.id is
// overwritten to match the assigned handle.
func (s *MapStore) AddKeyFrame(kf *KeyFrame) KeyFrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := KeyFrameHandle(len(s.keyFrames))
	kf.id = int(h)
	s.keyFrames = append(s.keyFrames, kf)
	return h
}

// AddMapPoint inserts mp into the arena and returns its handle. mp.id is
// overwritten to match the assigned handle.
func (s *MapStore) AddMapPoint(mp *MapPoint) MapPointHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := MapPointHandle(len(s.mapPoints))
	mp.id = int(h)
	s.mapPoints = append(s.mapPoints, mp)
	return h
}

// KeyFrame dereferences h, returning nil for an invalid or out-of-range handle.
func (s *MapStore) KeyFrame(h KeyFrameHandle) *KeyFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.Valid() || int(h) >= len(s.keyFrames) {
		return nil
	}
	return s.keyFrames[h]
}

// MapPoint dereferences h, returning nil for an invalid or out-of-range handle.
func (s *MapStore) MapPoint(h MapPointHandle) *MapPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.Valid() || int(h) >= len(s.mapPoints) {
		return nil
	}
	return s.mapPoints[h]
}

// ResolveMapPoint dereferences h and follows a single "replaced-by" hop if
// the target has been merged into another point, matching the one-hop
// forwarding Tracking.cc relies on (mCurrentFrame.mvpMapPoints[i] =
// pMP->GetReplaced()). It does not walk further chains: a point replaced
// twice in the same tick is expected to settle by the next tick.
func (s *MapStore) ResolveMapPoint(h MapPointHandle) *MapPoint {
	mp := s.MapPoint(h)
	if mp == nil {
		return nil
	}
	if mp.IsBad() {
		if r := mp.GetReplaced(); r.Valid() {
			return s.MapPoint(r)
		}
		return nil
	}
	return mp
}

// AllKeyFrames returns handles to every keyframe in the map, valid or not.
func (s *MapStore) AllKeyFrames() []KeyFrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyFrameHandle, 0, len(s.keyFrames)-1)
	for i := 1; i < len(s.keyFrames); i++ {
		out = append(out, KeyFrameHandle(i))
	}
	return out
}

// AllMapPoints returns handles to every map point in the map, valid or not.
func (s *MapStore) AllMapPoints() []MapPointHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MapPointHandle, 0, len(s.mapPoints)-1)
	for i := 1; i < len(s.mapPoints); i++ {
		out = append(out, MapPointHandle(i))
	}
	return out
}

// KeyFramesInMap returns the number of keyframes ever inserted.
func (s *MapStore) KeyFramesInMap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyFrames) - 1
}

// MapPointsInMap returns the number of map points ever inserted.
func (s *MapStore) MapPointsInMap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mapPoints) - 1
}

// SetReferenceMapPoints replaces the current local-map reference set, used by
// a Viewer collaborator to draw only the points the tracker is actively using.
func (s *MapStore) SetReferenceMapPoints(pts []MapPointHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenceMapPoints = pts
}

// ReferenceMapPoints returns the current local-map reference set.
func (s *MapStore) ReferenceMapPoints() []MapPointHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referenceMapPoints
}

// AddKeyFrameOrigin registers h as a map-origin keyframe, e.g. after a
// relocalization-triggered reset starts a new map segment.
func (s *MapStore) AddKeyFrameOrigin(h KeyFrameHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyFrameOrigins = append(s.keyFrameOrigins, h)
}

// KeyFrameOrigins returns every registered map-origin keyframe.
func (s *MapStore) KeyFrameOrigins() []KeyFrameHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyFrameOrigins
}

// Clear resets the store to empty, matching Map::clear on a tracking reset.
func (s *MapStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyFrames = make([]*KeyFrame, 1)
	s.mapPoints = make([]*MapPoint, 1)
	s.referenceMapPoints = nil
	s.keyFrameOrigins = nil
}
