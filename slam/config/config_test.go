package config

import (
	"testing"

	"go.viam.com/test"
)

const testYAML = `
File.version: "1.0"
ORBextractor.nFeatures: 1250
ORBextractor.scaleFactor: 1.2
ORBextractor.nLevels: 8
ORBextractor.iniThFAST: 20
ORBextractor.minThFAST: 7
Camera.type: PinHole
Camera.width: 640
Camera.height: 480
Camera.fps: 30
Camera.RGB: 1
Camera1.fx: 517.3
Camera1.fy: 516.5
Camera1.cx: 318.6
Camera1.cy: 255.3
Camera1.k1: 0.26
Camera1.k2: -0.95
Camera1.k3: 1.16
Camera1.p1: -0.0002
Camera1.p2: 0.0016
Stereo.b: 0.0745
Stereo.ThDepth: 40.0
RGBD.DepthMapFactor: 5000.0
`

func TestDecode(t *testing.T) {
	cfg, err := Decode([]byte(testYAML))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Intrinsics.Width, test.ShouldEqual, 640)
	test.That(t, cfg.Intrinsics.Fx, test.ShouldAlmostEqual, 517.3)
	test.That(t, cfg.RGB, test.ShouldBeTrue)
	test.That(t, cfg.FPS, test.ShouldEqual, 30)
	test.That(t, cfg.DepthFactor, test.ShouldAlmostEqual, 5000.0)
	test.That(t, cfg.Extractor.NFeatures, test.ShouldEqual, 1250)
	test.That(t, cfg.Intrinsics.BF(), test.ShouldAlmostEqual, 0.0745*517.3)
}

func TestDecodeRejectsMissingIntrinsics(t *testing.T) {
	_, err := Decode([]byte("Camera.width: 640\n"))
	test.That(t, err, test.ShouldNotBeNil)
}
