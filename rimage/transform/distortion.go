package transform

// BrownConradyDistortion holds Brown-Conrady radial/tangential distortion
// coefficients (k1, k2, k3, p1, p2) used to undistort keypoints before
// pose estimation, matching the ORB-SLAM-family calibration file layout.
type BrownConradyDistortion struct {
	RadialK1     float64
	RadialK2     float64
	RadialK3     float64
	TangentialP1 float64
	TangentialP2 float64
}

// NewBrownConradyDistortion builds a BrownConradyDistortion from up to five
// coefficients in (k1, k2, p1, p2, k3) order, the calibration-file
// convention; missing trailing coefficients default to zero.
func NewBrownConradyDistortion(coeffs []float64) *BrownConradyDistortion {
	get := func(i int) float64 {
		if i < len(coeffs) {
			return coeffs[i]
		}
		return 0
	}
	return &BrownConradyDistortion{
		RadialK1:     get(0),
		RadialK2:     get(1),
		TangentialP1: get(2),
		TangentialP2: get(3),
		RadialK3:     get(4),
	}
}

// IsZero reports whether the distortion model has no effect, letting callers
// skip the Newton-Raphson solve entirely.
func (d *BrownConradyDistortion) IsZero() bool {
	return d == nil || (d.RadialK1 == 0 && d.RadialK2 == 0 && d.RadialK3 == 0 &&
		d.TangentialP1 == 0 && d.TangentialP2 == 0)
}

// Undistort converts a distorted normalized-plane coordinate (xd, yd) to its
// undistorted counterpart via Newton-Raphson iteration on the forward
// Brown-Conrady model.
func (d *BrownConradyDistortion) Undistort(xd, yd float64) (float64, float64) {
	if d.IsZero() {
		return xd, yd
	}

	xu, yu := xd, yd
	const maxIterations = 20
	const tolerance = 1e-10

	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2
		r6 := r4 * r2

		radDist := 1.0 + d.RadialK1*r2 + d.RadialK2*r4 + d.RadialK3*r6
		tanDistX := 2.0*d.TangentialP1*xu*yu + d.TangentialP2*(r2+2.0*xu*xu)
		tanDistY := 2.0*d.TangentialP2*xu*yu + d.TangentialP1*(r2+2.0*yu*yu)

		xdEst := xu*radDist + tanDistX
		ydEst := yu*radDist + tanDistY

		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		dRadDistDxu := 2.0 * xu * (d.RadialK1 + 2.0*d.RadialK2*r2 + 3.0*d.RadialK3*r4)
		dRadDistDyu := 2.0 * yu * (d.RadialK1 + 2.0*d.RadialK2*r2 + 3.0*d.RadialK3*r4)

		dxdDxu := radDist + xu*dRadDistDxu + 2.0*d.TangentialP1*yu + d.TangentialP2*(2.0*xu+4.0*xu)
		dxdDyu := xu*dRadDistDyu + 2.0*d.TangentialP1*xu + d.TangentialP2*2.0*yu
		dydDxu := yu*dRadDistDxu + 2.0*d.TangentialP2*yu + d.TangentialP1*2.0*xu
		dydDyu := radDist + yu*dRadDistDyu + 2.0*d.TangentialP2*xu + d.TangentialP1*(2.0*yu+4.0*yu)

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}

		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return xu, yu
}
