package track

import (
	"go.viam.com/slamtrack/slam/collab"
	"go.viam.com/slamtrack/slam/mapstore"
)

// KeyframePolicyInput bundles the state NeedNewKeyFrame needs to decide
// whether the current frame should become a keyframe. It carries no engine
// internals directly, so the decision depends only on these inputs.
type KeyframePolicyInput struct {
	CurrentFrame      *Frame
	Store             *mapstore.MapStore
	LocalMapper       collab.LocalMapper
	ReferenceKF       mapstore.KeyFrameHandle
	LastKeyFrameID    int64
	LastRelocFrameID  int64
	KeyFrameCount     int64
	MaxFrames         int64
	MinFrames         int64
	Monocular         bool
	LocalMapInliers   int
}

// KeyframePolicy is stateless: NeedNewKeyFrame keeps no memory between calls,
// and its only side effect is asking a busy LocalMapper to interrupt bundle
// adjustment.
type KeyframePolicy struct{}

// NeedNewKeyFrame reports whether the tracker should promote the current
// frame to a keyframe, following Tracking.cc's NeedNewKeyFrame decision tree.
func (KeyframePolicy) NeedNewKeyFrame(in KeyframePolicyInput) bool {
	if in.LocalMapper.IsStopped() || in.LocalMapper.StopRequested() {
		return false
	}

	if in.CurrentFrame.ID < in.LastRelocFrameID+in.MaxFrames && in.KeyFrameCount > in.MaxFrames {
		return false
	}

	nMinObs := 3
	if in.KeyFrameCount <= fewKeyFramesCutoff {
		nMinObs = 2
	}
	var nRef int
	if refKF := in.Store.KeyFrame(in.ReferenceKF); refKF != nil {
		nRef = refKF.TrackedMapPoints(nMinObs, in.Store)
	}

	trackedClose, nonTrackedClose := 0, 0
	if !in.Monocular {
		for i := range in.CurrentFrame.KeyPoints {
			if !in.CurrentFrame.IsCloseDepth(i) {
				continue
			}
			if h := in.CurrentFrame.MapPoints[i]; h.Valid() && !in.CurrentFrame.Outlier[i] {
				if mp := in.Store.MapPoint(h); mp != nil && !mp.IsBad() {
					trackedClose++
					continue
				}
			}
			nonTrackedClose++
		}
	}
	needToInsertClose := trackedClose < closeTrackedCap && nonTrackedClose > nonTrackedCloseCap

	refRatio := refRatioDefault
	if in.KeyFrameCount < fewKeyFramesCutoff {
		refRatio = refRatioFewKFs
	}
	if in.Monocular {
		refRatio = refRatioMonocular
	}

	c1a := in.CurrentFrame.ID >= in.LastKeyFrameID+in.MaxFrames
	c1b := in.CurrentFrame.ID >= in.LastKeyFrameID+in.MinFrames && in.LocalMapper.AcceptKeyFrames()
	c1c := !in.Monocular && (float64(in.LocalMapInliers) < c1cInlierRatio*float64(nRef) || needToInsertClose)
	c2 := (float64(in.LocalMapInliers) < refRatio*float64(nRef) || needToInsertClose) && in.LocalMapInliers > c2MinInliers

	if !((c1a || c1b || c1c) && c2) {
		return false
	}

	if in.LocalMapper.AcceptKeyFrames() {
		return true
	}
	in.LocalMapper.InterruptBA()
	if !in.Monocular {
		return in.LocalMapper.KeyframesInQueue() < localMapperQueueCapNonMono
	}
	return false
}
