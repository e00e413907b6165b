// Package dither quantises 16-bit rows to 8-bit with Floyd–Steinberg error
// diffusion.
package dither

import (
	"context"
	"fmt"
	"math"

	"github.com/AnyUserName/photofinish/internal/parallel"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
)

// Rows at least this many samples wide are dithered one goroutine per channel.
const parallelThreshold = 4096

// Ditherer carries diffusion error from one row to the next. Rows must be
// fed in increasing y order; a Ditherer is not safe for concurrent use.
type Ditherer struct {
	width    int
	channels int
	scale    []float64
	unscale  []float64
	max      []int32
	// Errors are stored multiplied by 16.
	curr, next []int32
	done       bool
}

// New creates a ditherer for rows of width pixels with channels interleaved
// samples each. maxValues gives the output maximum per channel; omitted
// channels default to 255.
func New(width, channels int, maxValues ...int) (*Ditherer, error) {
	if width <= 0 {
		return nil, raster.Preconditionf("dither width %d", width)
	}
	if channels < 1 || channels > raster.MaxChannels {
		return nil, raster.TypeMismatchf("cannot dither %d channels", channels)
	}
	if len(maxValues) > channels {
		return nil, raster.Preconditionf("%d max values for %d channels", len(maxValues), channels)
	}
	d := &Ditherer{
		width:    width,
		channels: channels,
		scale:    make([]float64, channels),
		unscale:  make([]float64, channels),
		max:      make([]int32, channels),
		curr:     make([]int32, width*channels),
		next:     make([]int32, width*channels),
	}
	for c := 0; c < channels; c++ {
		m := 255
		if c < len(maxValues) {
			m = maxValues[c]
		}
		if m < 1 || m > 255 {
			return nil, raster.Preconditionf("channel %d max value %d outside [1, 255]", c, m)
		}
		d.max[c] = int32(m)
		d.scale[c] = float64(m) / 65535
		d.unscale[c] = 65535 / float64(m)
	}
	return d, nil
}

// Width returns the row width in pixels.
func (d *Ditherer) Width() int { return d.width }

// Channels returns the number of interleaved samples per pixel.
func (d *Ditherer) Channels() int { return d.channels }

// DitherRow quantises one row. in and out hold width*channels samples.
// isLastRow suppresses diffusion into the following row; calling DitherRow
// again after the last row is a precondition violation.
func (d *Ditherer) DitherRow(in []uint16, out []uint8, isLastRow bool) error {
	n := d.width * d.channels
	if len(in) != n || len(out) != n {
		return raster.Preconditionf("dither row: got %d in / %d out samples, want %d", len(in), len(out), n)
	}
	if d.done {
		return raster.Preconditionf("dither row: called after the last row")
	}

	d.curr, d.next = d.next, d.curr
	clear(d.next)

	if n >= parallelThreshold && d.channels > 1 {
		_ = parallel.For(context.Background(), d.channels, d.channels, func(c int) error {
			d.channel(c, in, out, isLastRow)
			return nil
		})
	} else {
		for c := 0; c < d.channels; c++ {
			d.channel(c, in, out, isLastRow)
		}
	}
	d.done = isLastRow
	return nil
}

func (d *Ditherer) channel(c int, in []uint16, out []uint8, last bool) {
	ch := d.channels
	scale, unscale, maxv := d.scale[c], d.unscale[c], d.max[c]
	curr, next := d.curr, d.next
	lastX := d.width - 1
	for x, p := 0, c; x <= lastX; x, p = x+1, p+ch {
		target := int32(in[p]) + curr[p]>>4
		q := int32(math.Round(float64(target) * scale))
		if q < 0 {
			q = 0
		} else if q > maxv {
			q = maxv
		}
		out[p] = uint8(q)
		e := target - int32(math.Round(float64(q)*unscale))

		if x < lastX {
			curr[p+ch] += 7 * e
		}
		if last {
			continue
		}
		next[p] += 5 * e
		if x > 0 {
			next[p-ch] += 3 * e
		}
		if x < lastX {
			next[p+ch] += e
		}
	}
}

// DitherImage quantises a packed 16-bit image to 8 bits, row by row in
// increasing y. Every channel, extra channels included, is dithered with a
// maximum of 255. With canFree each source row is freed once consumed.
func DitherImage(img *raster.Image, canFree bool, tracer perf.Tracer) (*raster.Image, error) {
	f := img.Format()
	if !f.Is16bit() || f.IsPlanar() {
		return nil, raster.TypeMismatchf("dither needs packed 16-bit input, got %s", f)
	}
	out, err := raster.NewImage(img.Width(), img.Height(), f.Set8bit())
	if err != nil {
		return nil, err
	}
	out.CopyMetadata(img)

	d, err := New(img.Width(), f.TotalChannels())
	if err != nil {
		return nil, err
	}
	span := tracer.Start("dither", img.Width(), img.Height())
	defer span.End()

	last := img.Height() - 1
	for y := 0; y <= last; y++ {
		row, err := img.Row(y)
		if err != nil {
			return nil, fmt.Errorf("dither row %d: %w", y, err)
		}
		if err := out.EnsureRowAllocated(y); err != nil {
			return nil, err
		}
		if err := d.DitherRow(raster.RowSamples[uint16](row), out.MustRow(y), y == last); err != nil {
			return nil, err
		}
		if canFree {
			img.FreeRow(y)
		}
	}
	return out, nil
}
