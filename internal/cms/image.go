package cms

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/AnyUserName/photofinish/internal/parallel"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
)

// Options controls TransformImage.
type Options struct {
	// CanFree lets the transform free each source row once it is converted.
	CanFree bool
	// Workers bounds row parallelism; <= 0 means GOMAXPROCS.
	Workers int
	Tracer  perf.Tracer
}

// TransformImage converts img into a new image of format dstFmt tagged
// with dstProfile (nil selects the default profile for dstFmt's model).
// The source profile is img's own profile, or the default for its model.
//
// Premultiplied sources are un-premultiplied before conversion; a pixel
// with zero alpha gets zero colour. A premultiplied destination is
// premultiplied after conversion. When source and destination carry the
// same number of extra channels they are copied; a destination with extra
// channels the source lacks is made opaque.
func TransformImage(ctx context.Context, img *raster.Image, dstProfile *Profile, dstFmt raster.Format, intent Intent, opts Options) (*raster.Image, error) {
	srcProfile, _ := img.Profile().(*Profile)
	srcFmt := img.Format()
	width := img.Width()

	unpremult := srcFmt.IsPremultipliedAlpha() && srcFmt.ExtraChannels() > 0
	premult := dstFmt.IsPremultipliedAlpha() && dstFmt.ExtraChannels() > 0
	copyExtra := srcFmt.ExtraChannels() == dstFmt.ExtraChannels()
	var flags Flags
	if copyExtra {
		flags |= FlagCopyExtra
	}

	inFmt := srcFmt.SetPremultipliedAlpha(false)
	var unpack *Transform
	if unpremult {
		work := inFmt.SetDouble().SetSwap(false).SetPlanar(false)
		var err error
		if unpack, err = NewTransform(srcProfile, inFmt, srcProfile, work, intent, FlagCopyExtra); err != nil {
			return nil, err
		}
		inFmt = work
	}
	xf, err := NewTransform(srcProfile, inFmt, dstProfile, dstFmt.SetPremultipliedAlpha(false), intent, flags)
	if err != nil {
		return nil, err
	}

	out, err := raster.NewImage(width, img.Height(), dstFmt)
	if err != nil {
		return nil, err
	}
	out.CopyMetadata(img)
	out.SetProfile(xf.DestinationProfile())

	span := opts.Tracer.Start("transform", width, img.Height())
	defer span.End()

	post := newLayout(dstFmt)
	err = parallel.For(ctx, img.Height(), opts.Workers, func(y int) error {
		row, err := img.Row(y)
		if err != nil {
			return fmt.Errorf("transform row %d: %w", y, err)
		}
		if err := out.EnsureRowAllocated(y); err != nil {
			return err
		}
		drow := out.MustRow(y)

		if unpack != nil {
			work := make([]float64, width*inFmt.TotalChannels())
			buf := unsafe.Slice((*byte)(unsafe.Pointer(&work[0])), len(work)*8)
			if err := unpack.Apply(row, buf, width); err != nil {
				return err
			}
			unpremultiply(work, inFmt.Channels(), inFmt.TotalChannels())
			row = buf
		}
		if err := xf.Apply(row, drow, width); err != nil {
			return err
		}
		if !copyExtra {
			fillOpaque(&post, drow, width)
		}
		if premult {
			premultiply(&post, drow, width)
		}
		if opts.CanFree {
			img.FreeRow(y)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// unpremultiply divides the colour channels of packed double pixels by
// their first extra channel. Zero alpha yields zero colour.
func unpremultiply(px []float64, colour, total int) {
	for i := 0; i+total <= len(px); i += total {
		a := px[i+colour]
		for c := 0; c < colour; c++ {
			if a > 0 {
				px[i+c] /= a
			} else {
				px[i+c] = 0
			}
		}
	}
}

func premultiply(l *layout, row []byte, n int) {
	colour := l.f.Channels()
	stride := n * l.bytes
	for i := 0; i < n; i++ {
		a := l.read(row, l.offset(i, colour, stride)) / l.max
		for c := 0; c < colour; c++ {
			off := l.offset(i, c, stride)
			l.write(row, off, l.read(row, off)*a)
		}
	}
}

func fillOpaque(l *layout, row []byte, n int) {
	colour := l.f.Channels()
	stride := n * l.bytes
	for i := 0; i < n; i++ {
		for c := colour; c < l.total; c++ {
			l.write(row, l.offset(i, c, stride), l.max)
		}
	}
}
