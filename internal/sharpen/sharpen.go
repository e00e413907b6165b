// Package sharpen implements 2D convolution with a sharpening kernel whose
// footprint is renormalised wherever it is clipped by the image edge.
package sharpen

import (
	"context"
	"fmt"
	"math"

	"github.com/AnyUserName/photofinish/internal/parallel"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
)

// Default Gaussian parameters used when a destination leaves them unset.
const (
	DefaultRadius = 1.0
	DefaultSigma  = 10.0
)

// Function2D is a basis function sampled on the kernel grid.
type Function2D interface {
	// Range is the radius of the function's support.
	Range() float64
	Eval(x, y float64) float64
}

// Gaussian is the negated Gaussian used for unsharp masking.
type Gaussian struct {
	radius, sigma float64
	safeSigmaSqr  float64
}

// NewGaussian returns a Gaussian with the given radius and sigma, using
// DefaultRadius and DefaultSigma for nil values. A radius that is set but
// not positive is an Uninitialised error.
func NewGaussian(radius, sigma *float64) (Gaussian, error) {
	g := Gaussian{radius: DefaultRadius, sigma: DefaultSigma}
	if radius != nil {
		if !(*radius > 0) {
			return Gaussian{}, &raster.UninitialisedError{Class: "GaussianSharpen", Field: "sharpen.radius"}
		}
		g.radius = *radius
	}
	if sigma != nil {
		g.sigma = *sigma
	}
	g.safeSigmaSqr = 1e-5
	if math.Abs(g.sigma) > 1e-5 {
		g.safeSigmaSqr = g.sigma * g.sigma
	}
	return g, nil
}

func (g Gaussian) Radius() float64 { return g.radius }
func (g Gaussian) Sigma() float64  { return g.sigma }
func (g Gaussian) Range() float64  { return g.radius }

func (g Gaussian) Eval(x, y float64) float64 {
	return -math.Exp((x*x + y*y) / (-2 * g.safeSigmaSqr))
}

// Kernel2D is a square convolution kernel with its centre at (cx, cy).
type Kernel2D struct {
	width, height int
	cx, cy        int
	values        []float64
}

// NewKernel2D samples f on a (1+2·ceil(range))² grid, replaces the centre
// tap with -2 times the sum of all taps and scales the kernel to unit sum
// (when that sum is not within 1e-5 of zero).
func NewKernel2D(f Function2D) *Kernel2D {
	c := int(math.Ceil(f.Range()))
	size := 1 + 2*c
	k := &Kernel2D{width: size, height: size, cx: c, cy: c, values: make([]float64, size*size)}

	total := 0.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := f.Eval(float64(x-c), float64(y-c))
			k.values[y*size+x] = v
			total += v
		}
	}
	centre := c*size + c
	old := k.values[centre]
	k.values[centre] = -2 * total
	total += k.values[centre] - old

	if math.Abs(total) > 1e-5 {
		inv := 1 / total
		for i := range k.values {
			k.values[i] *= inv
		}
	}
	return k
}

func (k *Kernel2D) Width() int  { return k.width }
func (k *Kernel2D) Height() int { return k.height }

// Centre returns the kernel coordinates of the centre tap.
func (k *Kernel2D) Centre() (x, y int) { return k.cx, k.cy }

// At returns the tap at kernel coordinates (x, y).
func (k *Kernel2D) At(x, y int) float64 { return k.values[y*k.width+x] }

// Options controls Convolve.
type Options struct {
	// CanFree lets Convolve free each source row once every output row
	// whose footprint covers it is written.
	CanFree bool
	// Workers bounds row parallelism; <= 0 means GOMAXPROCS.
	Workers int
	Tracer  perf.Tracer
}

// Convolve returns img convolved with k. The footprint is clipped at the
// image edges and every output pixel is divided by the sum of the taps
// that fell inside the image, so flat regions are preserved up to the
// border.
func (k *Kernel2D) Convolve(ctx context.Context, img *raster.Image, opts Options) (*raster.Image, error) {
	f := img.Format()
	if f.IsPlanar() {
		return nil, raster.TypeMismatchf("cannot sharpen planar format %s", f)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out, err := raster.NewImage(img.Width(), img.Height(), f)
	if err != nil {
		return nil, err
	}
	out.CopyMetadata(img)

	span := opts.Tracer.Start("sharpen", img.Width(), img.Height())
	defer span.End()

	var refs *parallel.RowRefs
	if opts.CanFree {
		refs = parallel.NewRowRefs(img.Height())
		for y := 0; y < img.Height(); y++ {
			lo, hi := k.rowSpan(y, img.Height())
			for r := lo; r < hi; r++ {
				refs.Add(r, 1)
			}
		}
	}

	switch f.SampleType() {
	case raster.SampleUint8:
		err = convolve[uint8](ctx, k, img, out, refs, opts.Workers)
	case raster.SampleUint16:
		err = convolve[uint16](ctx, k, img, out, refs, opts.Workers)
	case raster.SampleUint32:
		err = convolve[uint32](ctx, k, img, out, refs, opts.Workers)
	case raster.SampleFloat32:
		err = convolve[float32](ctx, k, img, out, refs, opts.Workers)
	case raster.SampleFloat64:
		err = convolve[float64](ctx, k, img, out, refs, opts.Workers)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rowSpan returns the source rows [lo, hi) under the footprint of output row y.
func (k *Kernel2D) rowSpan(y, height int) (lo, hi int) {
	return max(0, y-k.cy), min(height, y-k.cy+k.height)
}

func convolve[T raster.Sample](ctx context.Context, k *Kernel2D, src, dst *raster.Image, refs *parallel.RowRefs, workers int) error {
	width, height := src.Width(), src.Height()
	ch := src.Format().TotalChannels()
	nc := src.Format().Channels()
	return parallel.For(ctx, height, workers, func(y int) error {
		lo, hi := k.rowSpan(y, height)
		rows := make([][]T, hi-lo)
		for r := lo; r < hi; r++ {
			row, err := src.Row(r)
			if err != nil {
				return fmt.Errorf("sharpen row %d: %w", r, err)
			}
			rows[r-lo] = raster.RowSamples[T](row)
		}
		if err := dst.EnsureRowAllocated(y); err != nil {
			return err
		}
		out := raster.RowSamples[T](dst.MustRow(y))
		kyStart := lo - (y - k.cy)

		if ch == 3 && nc == 3 {
			convolveRow3(k, rows, kyStart, out, width)
		} else {
			convolveRowN(k, rows, kyStart, out, width, ch, nc)
			copyExtra(rows[y-lo], out, width, ch, nc)
		}

		if refs != nil {
			for r := lo; r < hi; r++ {
				if refs.Release(r) {
					src.FreeRow(r)
				}
			}
		}
		return nil
	})
}

// convolveRow3 is convolveRowN unrolled for three channels, the layout of
// the Lab working space.
func convolveRow3[T raster.Sample](k *Kernel2D, rows [][]T, kyStart int, out []T, width int) {
	for x := 0; x < width; x++ {
		kxStart := max(0, k.cx-x)
		kxEnd := min(k.width, width+k.cx-x)
		var s0, s1, s2, weight float64
		for i, row := range rows {
			taps := k.values[(kyStart+i)*k.width:]
			for kx := kxStart; kx < kxEnd; kx++ {
				w := taps[kx]
				p := row[3*(x+kx-k.cx):]
				weight += w
				s0 += float64(p[0]) * w
				s1 += float64(p[1]) * w
				s2 += float64(p[2]) * w
			}
		}
		if math.Abs(weight) > 1e-5 {
			inv := 1 / weight
			s0, s1, s2 = s0*inv, s1*inv, s2*inv
		}
		o := out[3*x : 3*x+3]
		o[0] = raster.FromFloat[T](s0)
		o[1] = raster.FromFloat[T](s1)
		o[2] = raster.FromFloat[T](s2)
	}
}

// convolveRowN filters the first nc channels of each pixel. Channels past
// nc are left for copyExtra.
func convolveRowN[T raster.Sample](k *Kernel2D, rows [][]T, kyStart int, out []T, width, ch, nc int) {
	var acc [raster.MaxChannels]float64
	for x := 0; x < width; x++ {
		kxStart := max(0, k.cx-x)
		kxEnd := min(k.width, width+k.cx-x)
		s := acc[:nc]
		clear(s)
		weight := 0.0
		for i, row := range rows {
			taps := k.values[(kyStart+i)*k.width:]
			for kx := kxStart; kx < kxEnd; kx++ {
				w := taps[kx]
				p := row[ch*(x+kx-k.cx) : ch*(x+kx-k.cx)+nc]
				weight += w
				for c, v := range p {
					s[c] += float64(v) * w
				}
			}
		}
		if math.Abs(weight) > 1e-5 {
			inv := 1 / weight
			for c := range s {
				s[c] *= inv
			}
		}
		o := out[ch*x : ch*x+nc]
		for c := range o {
			o[c] = raster.FromFloat[T](s[c])
		}
	}
}

// copyExtra passes alpha and other extra channels through unfiltered.
func copyExtra[T raster.Sample](src, out []T, width, ch, nc int) {
	if ch == nc {
		return
	}
	for x := 0; x < width; x++ {
		copy(out[ch*x+nc:ch*x+ch], src[ch*x+nc:ch*x+ch])
	}
}
