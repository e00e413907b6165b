package cms

import "math"

// D50 reference white, the profile connection space white point.
const (
	D50X = 0.9642
	D50Y = 1.0
	D50Z = 0.8249
)

const (
	labBreak      = (24.0 / 116.0) * (24.0 / 116.0) * (24.0 / 116.0)
	labInvBreak   = 24.0 / 116.0
	labLinearK    = 841.0 / 108.0
	labLinearBias = 16.0 / 116.0
)

func labF(t float64) float64 {
	if t <= labBreak {
		return labLinearK*t + labLinearBias
	}
	return math.Cbrt(t)
}

func labFInv(t float64) float64 {
	if t <= labInvBreak {
		return (108.0 / 841.0) * (t - labLinearBias)
	}
	return t * t * t
}

// XYZToLab converts D50 XYZ (Y of white = 1) to CIE Lab.
func XYZToLab(x, y, z float64) (l, a, b float64) {
	fx := labF(x / D50X)
	fy := labF(y / D50Y)
	fz := labF(z / D50Z)
	return 116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)
}

// LabToXYZ converts CIE Lab to D50 XYZ.
func LabToXYZ(l, a, b float64) (x, y, z float64) {
	fy := (l + 16) / 116
	fx := fy + 0.002*a
	fz := fy - 0.005*b
	return labFInv(fx) * D50X, labFInv(fy) * D50Y, labFInv(fz) * D50Z
}

// mat3 is a row-major 3x3 matrix.
type mat3 [9]float64

func (m mat3) apply(a, b, c float64) (float64, float64, float64) {
	return m[0]*a + m[1]*b + m[2]*c,
		m[3]*a + m[4]*b + m[5]*c,
		m[6]*a + m[7]*b + m[8]*c
}

// inverse returns the inverse of m and false when m is singular.
func (m mat3) inverse() (mat3, bool) {
	det := m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
	if math.Abs(det) < 1e-12 {
		return mat3{}, false
	}
	inv := 1 / det
	return mat3{
		(m[4]*m[8] - m[5]*m[7]) * inv,
		(m[2]*m[7] - m[1]*m[8]) * inv,
		(m[1]*m[5] - m[2]*m[4]) * inv,
		(m[5]*m[6] - m[3]*m[8]) * inv,
		(m[0]*m[8] - m[2]*m[6]) * inv,
		(m[2]*m[3] - m[0]*m[5]) * inv,
		(m[3]*m[7] - m[4]*m[6]) * inv,
		(m[1]*m[6] - m[0]*m[7]) * inv,
		(m[0]*m[4] - m[1]*m[3]) * inv,
	}, true
}

// colorantMatrix builds the RGB->XYZ matrix from the XYZ of the three primaries.
func colorantMatrix(r, g, b [3]float64) mat3 {
	return mat3{
		r[0], g[0], b[0],
		r[1], g[1], b[1],
		r[2], g[2], b[2],
	}
}
