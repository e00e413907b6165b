package cms

import (
	"math"
	"sort"
)

// Curve is a tone reproduction curve on [0, 1]: Linear maps an encoded
// device value to linear light, Encode is its inverse.
type Curve interface {
	Linear(v float64) float64
	Encode(v float64) float64
}

type identityCurve struct{}

func (identityCurve) Linear(v float64) float64 { return v }
func (identityCurve) Encode(v float64) float64 { return v }

type gammaCurve struct{ g float64 }

func (c gammaCurve) Linear(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, c.g)
}

func (c gammaCurve) Encode(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, 1/c.g)
}

// srgbCurve is IEC 61966-2-1, ICC parametric type 3 with
// g=2.4 a=1/1.055 b=0.055/1.055 c=1/12.92 d=0.04045.
type srgbCurve struct{}

func (srgbCurve) Linear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func (srgbCurve) Encode(v float64) float64 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

// sampledCurve is a monotonic increasing curve given by evenly spaced
// samples, as read from an ICC 'curv' table, or sampled from a parametric
// curve that has no closed-form inverse.
type sampledCurve struct {
	fwd []float64
}

func (c sampledCurve) Linear(v float64) float64 {
	return interp(c.fwd, v)
}

func (c sampledCurve) Encode(v float64) float64 {
	n := len(c.fwd)
	if v <= c.fwd[0] {
		return 0
	}
	if v >= c.fwd[n-1] {
		return 1
	}
	i := sort.SearchFloat64s(c.fwd, v)
	lo, hi := c.fwd[i-1], c.fwd[i]
	t := 0.0
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	return (float64(i-1) + t) / float64(n-1)
}

func interp(table []float64, v float64) float64 {
	n := len(table)
	if v <= 0 {
		return table[0]
	}
	if v >= 1 {
		return table[n-1]
	}
	pos := v * float64(n-1)
	i := int(pos)
	t := pos - float64(i)
	return table[i] + t*(table[i+1]-table[i])
}

// parametricCurve evaluates ICC 'para' function types 0 to 4.
func parametricCurve(kind int, p []float64) Curve {
	if kind == 0 {
		return gammaCurve{g: p[0]}
	}
	f := func(x float64) float64 {
		g := p[0]
		switch kind {
		case 1: // Y = (aX+b)^g for X >= -b/a, else 0
			a, b := p[1], p[2]
			if x >= -b/a {
				return math.Pow(math.Max(a*x+b, 0), g)
			}
			return 0
		case 2: // Y = (aX+b)^g + c for X >= -b/a, else c
			a, b, c := p[1], p[2], p[3]
			if x >= -b/a {
				return math.Pow(math.Max(a*x+b, 0), g) + c
			}
			return c
		case 3: // Y = (aX+b)^g for X >= d, else cX
			a, b, c, d := p[1], p[2], p[3], p[4]
			if x >= d {
				return math.Pow(math.Max(a*x+b, 0), g)
			}
			return c * x
		default: // Y = (aX+b)^g + e for X >= d, else cX + f
			a, b, c, d, e, ff := p[1], p[2], p[3], p[4], p[5], p[6]
			if x >= d {
				return math.Pow(math.Max(a*x+b, 0), g) + e
			}
			return c*x + ff
		}
	}
	return sample(f, 4096)
}

func sample(f func(float64) float64, n int) sampledCurve {
	t := make([]float64, n)
	for i := range t {
		t[i] = f(float64(i) / float64(n-1))
	}
	// Encode needs a non-decreasing table.
	for i := 1; i < n; i++ {
		if t[i] < t[i-1] {
			t[i] = t[i-1]
		}
	}
	return sampledCurve{fwd: t}
}
