package track

import (
	"sort"

	"go.viam.com/slamtrack/slam/mapstore"
)

// LocalMapCache is the per-frame snapshot of nearby keyframes and map points
// TrackLocalMap refines against. It holds only handles into a MapStore;
// nothing here owns the underlying keyframes or map points.
type LocalMapCache struct {
	keyFrames []mapstore.KeyFrameHandle
	mapPoints []mapstore.MapPointHandle
}

// KeyFrames returns the current local keyframe set.
func (c *LocalMapCache) KeyFrames() []mapstore.KeyFrameHandle { return c.keyFrames }

// MapPoints returns the current local map-point set.
func (c *LocalMapCache) MapPoints() []mapstore.MapPointHandle { return c.mapPoints }

// UpdateLocalKeyFrames rebuilds the local keyframe set from the map points
// the current frame already tracks: every observing keyframe votes, the
// keyframe with the most votes becomes the new reference, and the seed set
// is expanded once per seed with at most one new covisibility neighbor, one
// spanning-tree child, and the spanning-tree parent. Expansion stops once
// the set holds more than maxLocalKeyFrames entries; the set is not
// truncated to that bound. It returns the new reference keyframe, or the
// zero handle if the current frame tracks no map points.
func (c *LocalMapCache) UpdateLocalKeyFrames(frame *Frame, store *mapstore.MapStore) mapstore.KeyFrameHandle {
	votes := make(map[mapstore.KeyFrameHandle]int)
	for _, h := range frame.MapPoints {
		if !h.Valid() {
			continue
		}
		mp := store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		for kfh := range mp.Observations() {
			votes[kfh]++
		}
	}
	if len(votes) == 0 {
		c.keyFrames = nil
		return 0
	}

	type seedVote struct {
		h     mapstore.KeyFrameHandle
		count int
	}
	seeds := make([]seedVote, 0, len(votes))
	for h, cnt := range votes {
		seeds = append(seeds, seedVote{h, cnt})
	}
	// Vote order is not semantically meaningful (map points are unordered),
	// but a stable order keeps the local-keyframe growth deterministic
	// across runs with identical input.
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].h < seeds[j].h })

	var best mapstore.KeyFrameHandle
	bestCount := -1
	local := make([]mapstore.KeyFrameHandle, 0, len(seeds))
	seedList := make([]mapstore.KeyFrameHandle, 0, len(seeds))
	for _, sv := range seeds {
		kf := store.KeyFrame(sv.h)
		if kf == nil || kf.IsBad() {
			continue
		}
		if sv.count > bestCount {
			bestCount, best = sv.count, sv.h
		}
		if kf.SetTrackReferenceForFrame(frame.ID) {
			local = append(local, sv.h)
			seedList = append(seedList, sv.h)
		}
	}

	for _, seedH := range seedList {
		if len(local) > maxLocalKeyFrames {
			break
		}
		seedKF := store.KeyFrame(seedH)
		if seedKF == nil {
			continue
		}
		for _, n := range seedKF.GetBestCovisibilityKeyFrames(bestCovisibilityNeighbors) {
			nkf := store.KeyFrame(n)
			if nkf == nil || nkf.IsBad() {
				continue
			}
			if nkf.SetTrackReferenceForFrame(frame.ID) {
				local = append(local, n)
				break
			}
		}
		for _, ch := range seedKF.GetChilds() {
			ckf := store.KeyFrame(ch)
			if ckf == nil || ckf.IsBad() {
				continue
			}
			if ckf.SetTrackReferenceForFrame(frame.ID) {
				local = append(local, ch)
				break
			}
		}
		if parent, ok := seedKF.GetParent(); ok {
			pkf := store.KeyFrame(parent)
			if pkf != nil && pkf.SetTrackReferenceForFrame(frame.ID) {
				local = append(local, parent)
			}
		}
	}

	c.keyFrames = local
	return best
}

// UpdateLocalPoints rebuilds the local map-point set from the current local
// keyframe set: every non-bad map point observed by a local keyframe, not
// already tagged for this frame.
func (c *LocalMapCache) UpdateLocalPoints(frame *Frame, store *mapstore.MapStore) {
	var pts []mapstore.MapPointHandle
	for _, kfh := range c.keyFrames {
		kf := store.KeyFrame(kfh)
		if kf == nil {
			continue
		}
		for _, h := range kf.GetMapPointMatches() {
			if !h.Valid() {
				continue
			}
			mp := store.MapPoint(h)
			if mp == nil || mp.IsBad() {
				continue
			}
			if mp.SetTrackReferenceForFrame(frame.ID) {
				pts = append(pts, h)
			}
		}
	}
	c.mapPoints = pts
}

// SearchLocalPoints marks the current frame's already-matched map points as
// seen this tick, then returns the subset of the local map-point set that is
// both unseen this tick and within the frame's viewing frustum: the pending
// set a projection search should be run against.
func (c *LocalMapCache) SearchLocalPoints(frame *Frame, store *mapstore.MapStore) []mapstore.MapPointHandle {
	for i, h := range frame.MapPoints {
		if !h.Valid() {
			continue
		}
		mp := store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			frame.MapPoints[i] = 0
			continue
		}
		mp.IncreaseVisible(1)
		mp.SetLastFrameSeen(frame.ID)
	}

	var pending []mapstore.MapPointHandle
	for _, h := range c.mapPoints {
		mp := store.MapPoint(h)
		if mp == nil || mp.IsBad() {
			continue
		}
		if mp.LastFrameSeen() == frame.ID {
			continue
		}
		if frame.IsInFrustum(mp, frustumViewCosThreshold) {
			mp.IncreaseVisible(1)
			pending = append(pending, h)
		}
	}
	return pending
}
