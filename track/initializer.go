package track

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/slamtrack/slam/collab"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/vision/keypoints"
)

// Initializer builds the first two keyframes of a map. Stereo/RGB-D sensors
// have enough information in a single frame to initialize outright; monocular
// sensors need a second, sufficiently separated view to triangulate from,
// which Initializer tracks as pending reference-frame state across calls.
type Initializer struct {
	MonoInit  collab.MonoInitializer
	Matcher   collab.DescriptorMatcher
	Optimizer collab.Optimizer

	// pending holds the first monocular frame accepted as a reference,
	// waiting for a second frame to attempt two-view triangulation against.
	pending *Frame

	// prevMatched holds, per pending keypoint, its last known match location
	// in a current frame, seeded from the reference frame's own keypoint
	// positions and narrowed by each SearchForInitialization call, matching
	// mvbPrevMatched.
	prevMatched []r2.Point
}

// InitializeRGBD attempts one-shot initialization for a depth-bearing sensor:
// it requires enough keypoints, then unprojects every keypoint with usable
// depth directly into new map points, matching StereoInitialization.
func (in *Initializer) InitializeRGBD(store *mapstore.MapStore, frame *Frame) (mapstore.KeyFrameHandle, bool) {
	if len(frame.KeyPoints) <= stereoInitMinKeyPoints {
		return 0, false
	}

	frame.Pose = spatialmath.NewZeroPose()
	kf := mapstore.NewKeyFrame(0, frame.Pose, frame.KeyPoints, frame.Descriptors, frame.ScaleFactors, frame.Gray)
	kfh := store.AddKeyFrame(kf)

	for i := range frame.KeyPoints {
		pos, ok := frame.UnprojectStereo(i)
		if !ok {
			continue
		}
		mp := mapstore.NewMapPoint(0, pos, kfh)
		mph := store.AddMapPoint(mp)
		mp.AddObservation(kfh, i)
		kf.AddMapPoint(i, mph)
		mp.ComputeDistinctiveDescriptors(store)
		mp.UpdateNormalAndDepth(store)
		frame.MapPoints[i] = mph
	}

	kf.UpdateConnections(store)
	store.AddKeyFrameOrigin(kfh)
	frame.Reference = kfh
	return kfh, true
}

// TryInitializeMonocular attempts two-view monocular initialization. On the
// first sufficiently textured frame it records a pending reference and
// returns ok=false; on a later frame it puts the two frames' keypoints
// through the caller-supplied matcher and triangulator and, if the geometry
// checks out, builds both keyframes, runs global bundle adjustment, and
// normalizes scale to the reference keyframe's median scene depth.
func (in *Initializer) TryInitializeMonocular(
	ctx context.Context, store *mapstore.MapStore, frame *Frame,
) (mapstore.KeyFrameHandle, mapstore.KeyFrameHandle, bool, error) {
	if in.pending == nil {
		if len(frame.KeyPoints) <= monoInitMinKeyPoints {
			return 0, 0, false, nil
		}
		in.pending = frame.Clone()
		prevMatched := make([]r2.Point, len(in.pending.KeyPoints))
		for i, kp := range in.pending.KeyPoints {
			prevMatched[i] = kp.Point
		}
		in.prevMatched = prevMatched
		return 0, 0, false, nil
	}

	if len(frame.KeyPoints) <= monoInitMinKeyPoints {
		in.pending = nil
		in.prevMatched = nil
		return 0, 0, false, nil
	}

	refKPs := &keypoints.OrientedKeypoints{Points: in.pending.KeyPoints, Descriptors: in.pending.Descriptors, ScaleFactors: in.pending.ScaleFactors}
	curKPs := &keypoints.OrientedKeypoints{Points: frame.KeyPoints, Descriptors: frame.Descriptors, ScaleFactors: frame.ScaleFactors}

	// No map points exist yet to project, so the putative correspondence
	// set comes from a raw descriptor search between the two keypoint
	// sets, narrowed by the running prevMatched buffer.
	putative, err := in.Matcher.SearchForInitialization(ctx, refKPs, curKPs, in.prevMatched, monoInitSearchRadius)
	if err != nil {
		return 0, 0, false, errors.Wrap(err, "search for initialization")
	}
	if len(putative) < monoInitMinMatches {
		in.pending = nil
		in.prevMatched = nil
		return 0, 0, false, nil
	}

	points, triangulated, relPose, ok, err := in.MonoInit.Initialize(ctx, refKPs, curKPs, putative)
	if err != nil {
		return 0, 0, false, err
	}
	if !ok {
		return 0, 0, false, nil
	}

	refFrame := in.pending
	in.pending = nil
	in.prevMatched = nil

	refFrame.Pose = spatialmath.NewZeroPose()
	frame.Pose = relPose

	refKF := mapstore.NewKeyFrame(0, refFrame.Pose, refFrame.KeyPoints, refFrame.Descriptors, refFrame.ScaleFactors, refFrame.Gray)
	refKFH := store.AddKeyFrame(refKF)
	curKF := mapstore.NewKeyFrame(0, frame.Pose, frame.KeyPoints, frame.Descriptors, frame.ScaleFactors, frame.Gray)
	curKFH := store.AddKeyFrame(curKF)

	var newPoints []mapstore.MapPointHandle
	for i, corr := range putative {
		if i >= len(triangulated) || !triangulated[i] {
			continue
		}
		refIdx, curIdx := corr.RefIndex, corr.CurIndex
		mp := mapstore.NewMapPoint(0, points[i], refKFH)
		mph := store.AddMapPoint(mp)
		mp.AddObservation(refKFH, refIdx)
		mp.AddObservation(curKFH, curIdx)
		refKF.AddMapPoint(refIdx, mph)
		curKF.AddMapPoint(curIdx, mph)
		mp.ComputeDistinctiveDescriptors(store)
		mp.UpdateNormalAndDepth(store)
		refFrame.MapPoints[refIdx] = mph
		frame.MapPoints[curIdx] = mph
		newPoints = append(newPoints, mph)
	}
	if len(newPoints) <= monoInitMinTrackedPoints {
		store.Clear()
		return 0, 0, false, nil
	}

	refKF.UpdateConnections(store)
	curKF.UpdateConnections(store)
	store.AddKeyFrameOrigin(refKFH)

	if in.Optimizer != nil {
		if err := in.Optimizer.GlobalBundleAdjustment(
			ctx, store, []mapstore.KeyFrameHandle{refKFH, curKFH}, newPoints, globalBAIterations,
		); err != nil {
			return 0, 0, false, errors.Wrap(err, "global bundle adjustment after monocular init")
		}
	}

	medianDepth := refKF.ComputeSceneMedianDepth(2, store)
	if medianDepth <= 0 || curKF.TrackedMapPoints(1, store) <= monoInitMinTrackedPoints {
		store.Clear()
		return 0, 0, false, nil
	}
	invMedianDepth := 1.0 / medianDepth

	curPose := curKF.GetPose()
	curPose.Point = curPose.Point.Mul(invMedianDepth)
	curKF.SetPose(curPose)
	frame.Pose = curPose

	for _, mph := range newPoints {
		mp := store.MapPoint(mph)
		if mp == nil {
			continue
		}
		mp.SetWorldPos(mp.WorldPos().Mul(invMedianDepth))
		mp.UpdateNormalAndDepth(store)
	}

	frame.Reference = curKFH
	return refKFH, curKFH, true, nil
}

// Reset clears any pending monocular reference frame, e.g. after a full
// tracking reset.
func (in *Initializer) Reset() {
	in.pending = nil
	in.prevMatched = nil
}
