// Package transform holds the pinhole camera model the tracking front-end
// projects map points through and unprojects RGB-D pixels with.
package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is returned when a camera has no usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with additional context.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters needed to project a 3D point
// in camera space to a 2D pixel and back, the calibration
// slam/config.Config decodes from YAML.
type PinholeCameraIntrinsics struct {
	Width  int
	Height int
	Fx     float64
	Fy     float64
	Ppx    float64
	Ppy    float64

	// Baseline, in meters, non-zero only for stereo rigs. bf = Baseline * Fx
	// is the value Tracking.cc calls mbf.
	Baseline float64
}

// CheckValid reports whether the intrinsics are usable for projection.
func (p *PinholeCameraIntrinsics) CheckValid() error {
	if p == nil {
		return NewNoIntrinsicsError("intrinsics are nil")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return NewNoIntrinsicsError(errors.Errorf("invalid size (%d, %d)", p.Width, p.Height).Error())
	}
	if p.Fx <= 0 || p.Fy <= 0 {
		return NewNoIntrinsicsError(errors.Errorf("invalid focal length (%v, %v)", p.Fx, p.Fy).Error())
	}
	return nil
}

// BF returns the stereo baseline-times-focal-length term used to synthesize
// a right-image disparity from a depth reading (Tracking.cc's mbf).
func (p *PinholeCameraIntrinsics) BF() float64 {
	return p.Baseline * p.Fx
}

// Project maps a 3D point in camera space to a pixel, plus its depth.
func (p *PinholeCameraIntrinsics) Project(pt r3.Vector) (px r2.Point, depth float64) {
	if pt.Z == 0 {
		return r2.Point{X: p.Ppx, Y: p.Ppy}, 0
	}
	return r2.Point{
		X: pt.X*p.Fx/pt.Z + p.Ppx,
		Y: pt.Y*p.Fy/pt.Z + p.Ppy,
	}, pt.Z
}

// Unproject maps a pixel plus depth (meters) back to a 3D point in camera space.
func (p *PinholeCameraIntrinsics) Unproject(px r2.Point, depth float64) r3.Vector {
	return r3.Vector{
		X: (px.X - p.Ppx) * depth / p.Fx,
		Y: (px.Y - p.Ppy) * depth / p.Fy,
		Z: depth,
	}
}

// InBounds reports whether pixel px falls within the image the intrinsics
// describe, the same rejection test Tracking.cc's PosInGrid guards.
func (p *PinholeCameraIntrinsics) InBounds(px r2.Point) bool {
	return px.X >= 0 && px.X < float64(p.Width) && px.Y >= 0 && px.Y < float64(p.Height)
}
