// Package resample implements the separable variable-kernel resampler:
// per output sample weight windows built from a Filter, applied along one
// image axis at a time.
package resample

import (
	"math"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Kernel1D holds one normalised weight window per output sample along one
// axis. It is immutable once built and may be shared between goroutines.
type Kernel1D struct {
	filter  Filter
	scale   float64
	toSize  float64
	fromMax int
	start   []int
	weights [][]float64
}

// NewKernel1D builds the windows mapping the source interval
// [fromStart, fromStart+fromSize) of an axis with fromMax samples onto
// ceil(toSize) output samples.
//
// When downscaling the filter is widened by the scale factor so it covers
// every contributing source sample. Each window's weights are divided by
// their sum unless that sum is within 1e-5 of zero.
func NewKernel1D(f Filter, fromStart, fromSize float64, fromMax int, toSize float64) (*Kernel1D, error) {
	if f == nil {
		return nil, &raster.UninitialisedError{Class: "Kernel1D", Field: "resize.filter"}
	}
	if !(toSize > 0) || !(fromSize > 0) || fromMax <= 0 {
		return nil, raster.Preconditionf("resample %g of %d samples to %g", fromSize, fromMax, toSize)
	}

	n := int(math.Ceil(toSize))
	scale := fromSize / toSize
	radius, norm := f.Radius(), 1.0
	if scale >= 1 {
		radius = f.Radius() * scale
		norm = f.Radius() / math.Ceil(radius)
	}

	k := &Kernel1D{
		filter:  f,
		scale:   scale,
		toSize:  toSize,
		fromMax: fromMax,
		start:   make([]int, n),
		weights: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		centre := fromStart + float64(i)*scale
		left := int(math.Floor(centre - radius))
		if left < 0 {
			left = 0
		}
		right := int(math.Ceil(centre + radius))
		if right > fromMax-1 {
			right = fromMax - 1
		}
		if left > right {
			left = right
		}

		w := make([]float64, right-left+1)
		sum := 0.0
		for j := range w {
			w[j] = f.Eval((centre - float64(left+j)) * norm)
			sum += w[j]
		}
		if math.Abs(sum) > 1e-5 {
			for j := range w {
				w[j] /= sum
			}
		}
		k.start[i] = left
		k.weights[i] = w
	}
	return k, nil
}

// Filter returns the basis function the kernel was built from.
func (k *Kernel1D) Filter() Filter { return k.filter }

// Scale is fromSize / toSize.
func (k *Kernel1D) Scale() float64 { return k.scale }

// ToSize is the requested, possibly fractional, output length.
func (k *Kernel1D) ToSize() float64 { return k.toSize }

// SourceLen is the number of samples along the source axis.
func (k *Kernel1D) SourceLen() int { return k.fromMax }

// Len is the number of output samples, ceil(toSize).
func (k *Kernel1D) Len() int { return len(k.start) }

// Start is the first source index contributing to output sample i.
func (k *Kernel1D) Start(i int) int { return k.start[i] }

// Size is the number of source samples contributing to output sample i.
func (k *Kernel1D) Size(i int) int { return len(k.weights[i]) }

// Weights returns the weight window of output sample i. Callers must not
// modify it.
func (k *Kernel1D) Weights(i int) []float64 { return k.weights[i] }
