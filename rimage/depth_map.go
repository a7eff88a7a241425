// Package rimage provides the minimal image and depth-map value types the
// tracking front-end reads camera data through. It carries none of the
// codec/compression machinery a general imaging library needs — frames
// arrive already decoded from whatever camera driver sits upstream.
package rimage

import "github.com/pkg/errors"

// GrayImage is a single-channel 8-bit image, the input pyramid features and
// descriptor extraction run on.
type GrayImage struct {
	width, height int
	pix           []uint8
}

// NewGrayImage allocates a zeroed GrayImage of the given dimensions.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{width: width, height: height, pix: make([]uint8, width*height)}
}

// NewGrayImageFromBytes wraps existing row-major pixel data without copying.
// len(pix) must equal width*height.
func NewGrayImageFromBytes(width, height int, pix []uint8) (*GrayImage, error) {
	if len(pix) != width*height {
		return nil, errors.Errorf("pixel buffer length %d does not match %dx%d", len(pix), width, height)
	}
	return &GrayImage{width: width, height: height, pix: pix}, nil
}

// Width returns the image width in pixels.
func (g *GrayImage) Width() int { return g.width }

// Height returns the image height in pixels.
func (g *GrayImage) Height() int { return g.height }

// At returns the pixel value at (x, y).
func (g *GrayImage) At(x, y int) uint8 {
	return g.pix[y*g.width+x]
}

// Set writes the pixel value at (x, y).
func (g *GrayImage) Set(x, y int, v uint8) {
	g.pix[y*g.width+x] = v
}

// Pix exposes the underlying row-major pixel buffer.
func (g *GrayImage) Pix() []uint8 { return g.pix }

// DepthMap holds per-pixel depth in meters, aligned to a GrayImage of the
// same dimensions for RGB-D input.
type DepthMap struct {
	width, height int
	data          []float32
}

// NewEmptyDepthMap allocates a zeroed DepthMap, zero meaning "no reading".
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{width: width, height: height, data: make([]float32, width*height)}
}

// NewDepthMapFromMeters wraps existing row-major depth data without copying.
func NewDepthMapFromMeters(width, height int, data []float32) (*DepthMap, error) {
	if len(data) != width*height {
		return nil, errors.Errorf("depth buffer length %d does not match %dx%d", len(data), width, height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// HasData reports whether the map carries any pixels at all.
func (dm *DepthMap) HasData() bool {
	return dm != nil && dm.width > 0 && dm.data != nil
}

// Width returns the map width in pixels.
func (dm *DepthMap) Width() int { return dm.width }

// Height returns the map height in pixels.
func (dm *DepthMap) Height() int { return dm.height }

// Get returns the depth, in meters, at (x, y). Zero means no reading.
func (dm *DepthMap) Get(x, y int) float32 {
	return dm.data[y*dm.width+x]
}

// Set writes the depth, in meters, at (x, y).
func (dm *DepthMap) Set(x, y int, meters float32) {
	dm.data[y*dm.width+x] = meters
}
