package resample

import (
	"context"
	"fmt"

	"github.com/AnyUserName/photofinish/internal/parallel"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
)

// Options controls a convolution pass.
type Options struct {
	// CanFree lets the pass free source rows as soon as no remaining output
	// needs them.
	CanFree bool
	// Workers bounds row parallelism; <= 0 means GOMAXPROCS.
	Workers int
	Tracer  perf.Tracer
}

func checkFormat(f raster.Format) error {
	if f.IsPlanar() {
		return raster.TypeMismatchf("cannot resample planar format %s", f)
	}
	return f.Validate()
}

// ConvolveH resamples img horizontally to k.Len() columns. The X
// resolution, when defined, is divided by the kernel's scale.
func (k *Kernel1D) ConvolveH(ctx context.Context, img *raster.Image, opts Options) (*raster.Image, error) {
	f := img.Format()
	if err := checkFormat(f); err != nil {
		return nil, err
	}
	if k.fromMax > img.Width() {
		return nil, raster.Preconditionf("kernel built for %d columns, image has %d", k.fromMax, img.Width())
	}
	out, err := raster.NewImage(k.Len(), img.Height(), f)
	if err != nil {
		return nil, err
	}
	out.CopyMetadata(img)
	if x, ok := img.XResolution(); ok {
		out.SetXResolution(x / k.scale)
	}

	span := opts.Tracer.Start("resample-h", k.Len(), img.Height())
	defer span.End()

	switch f.SampleType() {
	case raster.SampleUint8:
		err = convolveH[uint8](ctx, k, img, out, opts)
	case raster.SampleUint16:
		err = convolveH[uint16](ctx, k, img, out, opts)
	case raster.SampleUint32:
		err = convolveH[uint32](ctx, k, img, out, opts)
	case raster.SampleFloat32:
		err = convolveH[float32](ctx, k, img, out, opts)
	case raster.SampleFloat64:
		err = convolveH[float64](ctx, k, img, out, opts)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConvolveV resamples img vertically to k.Len() rows. The Y resolution,
// when defined, is divided by the kernel's scale. With CanFree each source
// row is freed once the last output row whose window covers it is done;
// rows no window covers are freed immediately.
func (k *Kernel1D) ConvolveV(ctx context.Context, img *raster.Image, opts Options) (*raster.Image, error) {
	f := img.Format()
	if err := checkFormat(f); err != nil {
		return nil, err
	}
	if k.fromMax > img.Height() {
		return nil, raster.Preconditionf("kernel built for %d rows, image has %d", k.fromMax, img.Height())
	}
	out, err := raster.NewImage(img.Width(), k.Len(), f)
	if err != nil {
		return nil, err
	}
	out.CopyMetadata(img)
	if y, ok := img.YResolution(); ok {
		out.SetYResolution(y / k.scale)
	}

	span := opts.Tracer.Start("resample-v", img.Width(), k.Len())
	defer span.End()

	var refs *parallel.RowRefs
	if opts.CanFree {
		refs = parallel.NewRowRefs(img.Height())
		for i := range k.start {
			for j := range k.weights[i] {
				refs.Add(k.start[i]+j, 1)
			}
		}
		for y := 0; y < img.Height(); y++ {
			if refs.Count(y) == 0 {
				img.FreeRow(y)
			}
		}
	}

	switch f.SampleType() {
	case raster.SampleUint8:
		err = convolveV[uint8](ctx, k, img, out, refs, opts)
	case raster.SampleUint16:
		err = convolveV[uint16](ctx, k, img, out, refs, opts)
	case raster.SampleUint32:
		err = convolveV[uint32](ctx, k, img, out, refs, opts)
	case raster.SampleFloat32:
		err = convolveV[float32](ctx, k, img, out, refs, opts)
	case raster.SampleFloat64:
		err = convolveV[float64](ctx, k, img, out, refs, opts)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convolveH[T raster.Sample](ctx context.Context, k *Kernel1D, src, dst *raster.Image, opts Options) error {
	row := rowFuncH[T](src.Format().TotalChannels())
	return parallel.For(ctx, src.Height(), opts.Workers, func(y int) error {
		in, err := src.Row(y)
		if err != nil {
			return fmt.Errorf("resample row %d: %w", y, err)
		}
		if err := dst.EnsureRowAllocated(y); err != nil {
			return err
		}
		row(k, raster.RowSamples[T](in), raster.RowSamples[T](dst.MustRow(y)))
		if opts.CanFree {
			src.FreeRow(y)
		}
		return nil
	})
}

func convolveV[T raster.Sample](ctx context.Context, k *Kernel1D, src, dst *raster.Image, refs *parallel.RowRefs, opts Options) error {
	n := src.Width() * src.Format().TotalChannels()
	return parallel.For(ctx, k.Len(), opts.Workers, func(ny int) error {
		acc := make([]float64, n)
		first := k.start[ny]
		for j, w := range k.weights[ny] {
			in, err := src.Row(first + j)
			if err != nil {
				return fmt.Errorf("resample row %d: %w", first+j, err)
			}
			addScaled(acc, raster.RowSamples[T](in), w)
		}
		if err := dst.EnsureRowAllocated(ny); err != nil {
			return err
		}
		store(raster.RowSamples[T](dst.MustRow(ny)), acc)
		if refs != nil {
			for j := range k.weights[ny] {
				if refs.Release(first + j) {
					src.FreeRow(first + j)
				}
			}
		}
		return nil
	})
}

func addScaled[T raster.Sample](acc []float64, in []T, w float64) {
	in = in[:len(acc)]
	for i, v := range in {
		acc[i] += float64(v) * w
	}
}

func store[T raster.Sample](out []T, acc []float64) {
	out = out[:len(acc)]
	for i, v := range acc {
		out[i] = raster.FromFloat[T](v)
	}
}

// rowFuncH returns the horizontal row loop for ch interleaved channels.
// One, three and four channels get unrolled loops; other counts up to
// raster.MaxChannels share an accumulator array.
func rowFuncH[T raster.Sample](ch int) func(k *Kernel1D, in, out []T) {
	switch ch {
	case 1:
		return rowH1[T]
	case 3:
		return rowH3[T]
	case 4:
		return rowH4[T]
	}
	return func(k *Kernel1D, in, out []T) { rowHN(k, in, out, ch) }
}

func rowH1[T raster.Sample](k *Kernel1D, in, out []T) {
	for nx, w := range k.weights {
		src := in[k.start[nx]:]
		var s float64
		for j, wj := range w {
			s += float64(src[j]) * wj
		}
		out[nx] = raster.FromFloat[T](s)
	}
}

func rowH3[T raster.Sample](k *Kernel1D, in, out []T) {
	for nx, w := range k.weights {
		src := in[3*k.start[nx]:]
		var s0, s1, s2 float64
		for j, wj := range w {
			p := src[3*j : 3*j+3]
			s0 += float64(p[0]) * wj
			s1 += float64(p[1]) * wj
			s2 += float64(p[2]) * wj
		}
		o := out[3*nx : 3*nx+3]
		o[0] = raster.FromFloat[T](s0)
		o[1] = raster.FromFloat[T](s1)
		o[2] = raster.FromFloat[T](s2)
	}
}

func rowH4[T raster.Sample](k *Kernel1D, in, out []T) {
	for nx, w := range k.weights {
		src := in[4*k.start[nx]:]
		var s0, s1, s2, s3 float64
		for j, wj := range w {
			p := src[4*j : 4*j+4]
			s0 += float64(p[0]) * wj
			s1 += float64(p[1]) * wj
			s2 += float64(p[2]) * wj
			s3 += float64(p[3]) * wj
		}
		o := out[4*nx : 4*nx+4]
		o[0] = raster.FromFloat[T](s0)
		o[1] = raster.FromFloat[T](s1)
		o[2] = raster.FromFloat[T](s2)
		o[3] = raster.FromFloat[T](s3)
	}
}

func rowHN[T raster.Sample](k *Kernel1D, in, out []T, ch int) {
	var acc [raster.MaxChannels]float64
	for nx, w := range k.weights {
		src := in[ch*k.start[nx]:]
		s := acc[:ch]
		clear(s)
		for j, wj := range w {
			p := src[ch*j : ch*j+ch]
			for c, v := range p {
				s[c] += float64(v) * wj
			}
		}
		o := out[ch*nx : ch*nx+ch]
		for c := range o {
			o[c] = raster.FromFloat[T](s[c])
		}
	}
}
