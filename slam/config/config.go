// Package config decodes the ORB-SLAM-family YAML calibration file into the
// values track.Engine needs: camera intrinsics, distortion, stereo/RGBD
// parameters, and the feature-extraction budget it hands to a
// collab.FeatureExtractor.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/slamtrack/rimage/transform"
)

// rawSettings mirrors services/slam's ORBsettings field-for-field: this is
// the decode side of that struct's yaml.Marshal.
type rawSettings struct {
	FileVersion string `yaml:"File.version"`

	NFeatures   int     `yaml:"ORBextractor.nFeatures"`
	ScaleFactor float64 `yaml:"ORBextractor.scaleFactor"`
	NLevels     int     `yaml:"ORBextractor.nLevels"`
	IniThFAST   int     `yaml:"ORBextractor.iniThFAST"`
	MinThFAST   int     `yaml:"ORBextractor.minThFAST"`

	CamType string `yaml:"Camera.type"`
	Width   int    `yaml:"Camera.width"`
	Height  int    `yaml:"Camera.height"`
	FPS     int8   `yaml:"Camera.fps"`
	RGB     int8   `yaml:"Camera.RGB"`

	Fx           float64 `yaml:"Camera1.fx"`
	Fy           float64 `yaml:"Camera1.fy"`
	Cx           float64 `yaml:"Camera1.cx"`
	Cy           float64 `yaml:"Camera1.cy"`
	RadialK1     float64 `yaml:"Camera1.k1"`
	RadialK2     float64 `yaml:"Camera1.k2"`
	RadialK3     float64 `yaml:"Camera1.k3"`
	TangentialP1 float64 `yaml:"Camera1.p1"`
	TangentialP2 float64 `yaml:"Camera1.p2"`

	StereoBaseline float64 `yaml:"Stereo.b"`
	StereoThDepth  float64 `yaml:"Stereo.ThDepth"`
	DepthMapFactor float64 `yaml:"RGBD.DepthMapFactor"`
}

// ORBExtractorSettings is the feature-extraction budget a FeatureExtractor
// collaborator is configured with.
type ORBExtractorSettings struct {
	NFeatures   int
	ScaleFactor float64
	NLevels     int
	IniThFAST   int
	MinThFAST   int
}

// Config is the fully decoded calibration: camera intrinsics/distortion
// plus the stereo/RGBD/extractor parameters Tracking.cc reads from its YAML
// settings file at startup.
type Config struct {
	Intrinsics  *transform.PinholeCameraIntrinsics
	Distortion  *transform.BrownConradyDistortion
	RGB         bool
	FPS         int
	ThDepth     float64 // ThDepth * baseline is the far-point stereo/RGBD cutoff, in Tracking.cc units.
	DepthFactor float64 // divides raw depth-sensor units into meters.
	Extractor   ORBExtractorSettings
}

// Load reads and decodes a calibration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading slam config")
	}
	return Decode(data)
}

// Decode parses YAML calibration data into a Config.
func Decode(data []byte) (*Config, error) {
	var raw rawSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding slam config yaml")
	}

	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:    raw.Width,
		Height:   raw.Height,
		Fx:       raw.Fx,
		Fy:       raw.Fy,
		Ppx:      raw.Cx,
		Ppy:      raw.Cy,
		Baseline: raw.StereoBaseline,
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}

	depthFactor := raw.DepthMapFactor
	if depthFactor == 0 {
		depthFactor = 1
	}

	return &Config{
		Intrinsics: intrinsics,
		Distortion: transform.NewBrownConradyDistortion([]float64{
			raw.RadialK1, raw.RadialK2, raw.TangentialP1, raw.TangentialP2, raw.RadialK3,
		}),
		RGB:         raw.RGB != 0,
		FPS:         int(raw.FPS),
		ThDepth:     raw.StereoThDepth,
		DepthFactor: depthFactor,
		Extractor: ORBExtractorSettings{
			NFeatures:   raw.NFeatures,
			ScaleFactor: raw.ScaleFactor,
			NLevels:     raw.NLevels,
			IniThFAST:   raw.IniThFAST,
			MinThFAST:   raw.MinThFAST,
		},
	}, nil
}
