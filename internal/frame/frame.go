// Package frame describes where and how big a destination target is cut
// from a source image, and performs the crop-and-resize.
package frame

import (
	"context"
	"fmt"
	"math"

	"github.com/AnyUserName/photofinish/internal/raster"
	"github.com/AnyUserName/photofinish/internal/resample"
)

// Target is the output size a solver fits a crop to.
type Target struct {
	Name   string
	Width  float64
	Height float64
	// Size is the long edge in inches; zero leaves the resolution undefined.
	Size float64
}

// Frame is a crop rectangle in source pixel coordinates together with the
// output size it is resampled to.
type Frame struct {
	Target     string
	CropX      float64
	CropY      float64
	CropW      float64
	CropH      float64
	Width      float64
	Height     float64
	Resolution float64 // PPI; zero means undefined
}

func (f Frame) String() string {
	return fmt.Sprintf("%s: %.1fx%.1f+%.1f+%.1f -> %gx%g", f.Target, f.CropW, f.CropH, f.CropX, f.CropY, f.Width, f.Height)
}

// Validate checks the frame against a source of srcW x srcH pixels.
func (f Frame) Validate(srcW, srcH int) error {
	const eps = 1e-6
	switch {
	case !(f.Width > 0) || !(f.Height > 0):
		return raster.Preconditionf("frame %s has no output size", f)
	case !(f.CropW > 0) || !(f.CropH > 0):
		return raster.Preconditionf("frame %s has an empty crop", f)
	case f.CropX < -eps || f.CropY < -eps ||
		f.CropX+f.CropW > float64(srcW)+eps || f.CropY+f.CropH > float64(srcH)+eps:
		return raster.Preconditionf("frame %s exceeds the %dx%d source", f, srcW, srcH)
	}
	return nil
}

// Resize crops and resamples img to the frame's output size with two
// separable passes. The axis whose pass shrinks the data more runs first;
// the order changes only the cost, not the result beyond rounding. The
// intermediate image's rows are freed as the second pass consumes them.
// opts.CanFree applies to img itself.
//
// A positive Resolution replaces the resolution derived from the scale.
func (f Frame) Resize(ctx context.Context, img *raster.Image, filter resample.Filter, opts resample.Options) (*raster.Image, error) {
	srcW, srcH := img.Width(), img.Height()
	if err := f.Validate(srcW, srcH); err != nil {
		return nil, err
	}
	kh, err := resample.NewKernel1D(filter, f.CropX, f.CropW, srcW, f.Width)
	if err != nil {
		return nil, fmt.Errorf("horizontal kernel: %w", err)
	}
	kv, err := resample.NewKernel1D(filter, f.CropY, f.CropH, srcH, f.Height)
	if err != nil {
		return nil, fmt.Errorf("vertical kernel: %w", err)
	}

	second := opts
	second.CanFree = true

	var tmp, out *raster.Image
	if f.HorizontalFirst(srcW, srcH) {
		if tmp, err = kh.ConvolveH(ctx, img, opts); err != nil {
			return nil, err
		}
		out, err = kv.ConvolveV(ctx, tmp, second)
	} else {
		if tmp, err = kv.ConvolveV(ctx, img, opts); err != nil {
			return nil, err
		}
		out, err = kh.ConvolveH(ctx, tmp, second)
	}
	if err != nil {
		return nil, err
	}
	if f.Resolution > 0 {
		out.SetResolution(f.Resolution)
	}
	return out, nil
}

// HorizontalFirst reports whether the horizontal pass should run first
// for a srcW x srcH source: true when it yields the smaller intermediate.
func (f Frame) HorizontalFirst(srcW, srcH int) bool {
	return f.Width*float64(srcH) < float64(srcW)*f.Height
}

// Solver chooses the crop of a source image for a target.
type Solver interface {
	Solve(srcW, srcH int, t Target) (Frame, error)
}

// CentreSolver returns the largest crop with the target's aspect ratio,
// centred in the source.
type CentreSolver struct{}

func (CentreSolver) Solve(srcW, srcH int, t Target) (Frame, error) {
	if !(t.Width > 0) || !(t.Height > 0) {
		return Frame{}, raster.Preconditionf("target %q has no size", t.Name)
	}
	if srcW <= 0 || srcH <= 0 {
		return Frame{}, raster.Preconditionf("source is %dx%d", srcW, srcH)
	}
	fr := Frame{Target: t.Name, Width: t.Width, Height: t.Height}
	sw, sh := float64(srcW), float64(srcH)
	if sw*t.Height > sh*t.Width {
		fr.CropH = sh
		fr.CropW = sh * t.Width / t.Height
	} else {
		fr.CropW = sw
		fr.CropH = sw * t.Height / t.Width
	}
	fr.CropX = (sw - fr.CropW) / 2
	fr.CropY = (sh - fr.CropH) / 2
	if t.Size > 0 {
		fr.Resolution = math.Max(t.Width, t.Height) / t.Size
	}
	return fr, nil
}
