// Package main replays a directory of pre-extracted RGB-D frame fixtures
// through track.Engine, printing the pose and tracking state produced for
// each one. It exists for manually driving the tracker against captured
// keypoint/depth data without a real feature-extraction or optimization
// back-end wired in, the way rimage/cmd's small single-purpose tools drive
// one piece of the pipeline in isolation.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/slamtrack/logging"
	"go.viam.com/slamtrack/rimage"
	slamconfig "go.viam.com/slamtrack/slam/config"
	"go.viam.com/slamtrack/slam/fake"
	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
	"go.viam.com/slamtrack/track"
	"go.viam.com/slamtrack/vision/keypoints"
)

// fixtureKeyPoint is one JSON-encoded keypoint in a fixture file.
type fixtureKeyPoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Octave int     `json:"octave"`
	Angle  float64 `json:"angle"`
}

// fixture is one JSON-encoded frame: keypoints, index-aligned base64
// descriptors, and index-aligned per-keypoint depth in meters (zero meaning
// no reading), captured ahead of time from a real feature extractor.
type fixture struct {
	Timestamp    int64             `json:"timestamp"`
	ScaleFactors []float64         `json:"scale_factors"`
	KeyPoints    []fixtureKeyPoint `json:"keypoints"`
	Descriptors  []string          `json:"descriptors"`
	Depth        []float32         `json:"depth"`
}

func (f *fixture) toKeyPoints() (*keypoints.OrientedKeypoints, []float32, error) {
	kps := &keypoints.OrientedKeypoints{
		Points:       make(keypoints.KeyPoints, len(f.KeyPoints)),
		Descriptors:  make(keypoints.Descriptors, len(f.KeyPoints)),
		ScaleFactors: f.ScaleFactors,
	}
	for i, kp := range f.KeyPoints {
		kps.Points[i].Point.X = kp.X
		kps.Points[i].Point.Y = kp.Y
		kps.Points[i].Octave = kp.Octave
		kps.Points[i].Angle = kp.Angle

		if i >= len(f.Descriptors) {
			continue
		}
		desc, err := base64.StdEncoding.DecodeString(f.Descriptors[i])
		if err != nil {
			return nil, nil, errors.Wrapf(err, "decoding descriptor %d", i)
		}
		kps.Descriptors[i] = desc
	}
	depth := make([]float32, len(f.KeyPoints))
	copy(depth, f.Depth)
	return kps, depth, nil
}

func loadFixtures(dir string) ([]*fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading fixtures directory")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	fixtures := make([]*fixture, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "reading fixture %s", name)
		}
		var f fixture
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "decoding fixture %s", name)
		}
		fixtures = append(fixtures, &f)
	}
	return fixtures, nil
}

func main() {
	configPath := flag.String("config", "", "path to an ORB-SLAM-style calibration YAML file")
	fixturesDir := flag.String("fixtures", "", "directory of *.json frame fixtures, replayed in filename order")
	flag.Parse()

	if *configPath == "" || *fixturesDir == "" {
		fmt.Fprintln(os.Stderr, "usage: trackreplay -config <calibration.yaml> -fixtures <dir>")
		os.Exit(2)
	}

	if err := run(*configPath, *fixturesDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, fixturesDir string) error {
	logger := logging.NewLogger("trackreplay")

	cfg, err := slamconfig.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading calibration")
	}

	fixtures, err := loadFixtures(fixturesDir)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		return errors.Errorf("no *.json fixtures found in %s", fixturesDir)
	}

	extracted := make([]*keypoints.OrientedKeypoints, len(fixtures))
	depths := make([][]float32, len(fixtures))
	for i, f := range fixtures {
		kps, depth, err := f.toKeyPoints()
		if err != nil {
			return errors.Wrapf(err, "fixture %d", i)
		}
		extracted[i] = kps
		depths[i] = depth
	}

	// Every collaborator downstream of feature extraction is a fake: this
	// tool exists to inspect what the state machine and keyframe policy do
	// with real keypoint/depth data, not to run a real photometric aligner
	// or bundle adjuster.
	collaborators := track.Collaborators{
		FeatureExtractor: fake.NewFeatureExtractor(extracted...),
		Matcher:          &fake.DescriptorMatcher{},
		Optimizer:        &fake.Optimizer{RefinedPose: spatialmath.NewZeroPose()},
		Aligner:          &fake.ImageAligner{Pose: spatialmath.NewZeroPose()},
		LocalMapper:      fake.NewLocalMapper(),
	}

	store := mapstore.NewMapStore()
	engine := track.NewEngine(store, false, collaborators, logger, cfg.FPS)
	engine.SetCalibration(cfg.Intrinsics, cfg.Distortion, cfg.Intrinsics.BF(), cfg.ThDepth)

	ctx := context.Background()
	for i, f := range fixtures {
		gray := rimage.NewGrayImage(cfg.Intrinsics.Width, cfg.Intrinsics.Height)
		depthMap, err := rimage.NewDepthMapFromMeters(cfg.Intrinsics.Width, cfg.Intrinsics.Height, make([]float32, cfg.Intrinsics.Width*cfg.Intrinsics.Height))
		if err != nil {
			return errors.Wrap(err, "allocating depth map")
		}
		for j, kp := range extracted[i].Points {
			x, y := int(kp.Point.X), int(kp.Point.Y)
			if x < 0 || y < 0 || x >= cfg.Intrinsics.Width || y >= cfg.Intrinsics.Height {
				continue
			}
			depthMap.Set(x, y, depths[i][j])
		}

		pose, ok, err := engine.ProcessRGBD(ctx, gray, depthMap, f.Timestamp)
		if err != nil {
			return errors.Wrapf(err, "processing fixture %d", i)
		}
		logger.Infow("frame processed",
			"frame", i,
			"timestamp", f.Timestamp,
			"state", engine.State().String(),
			"tracked", ok,
			"pose", pose,
			"keyframes", store.KeyFramesInMap(),
			"map_points", store.MapPointsInMap(),
		)
	}

	trajectory := engine.Trajectory().Entries()
	logger.Infof("replay complete: %d frames, %d trajectory entries, final state %s",
		len(fixtures), len(trajectory), engine.State())
	return nil
}
