// Package codec moves pixels between files, image.Image values and the
// raster images of the processing core.
package codec

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Decode opens an image file, applies its EXIF orientation and converts it
// to a raster image. The result carries no profile, so the default profile
// of its colour model applies.
func Decode(path string) (*raster.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// FromImage copies img into a fully allocated raster image. Opaque images
// lose their alpha channel; image.RGBA and image.RGBA64 with transparency
// become premultiplied formats. Types without a direct mapping go through
// an NRGBA copy.
func FromImage(img image.Image) (*raster.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.Gray:
		return copy8(w, h, raster.Grey8(), 1, 1, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.Gray16:
		return copy16(w, h, raster.Grey16(), 1, 1, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.CMYK:
		return copy8(w, h, raster.CMYK8(), 4, 4, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.NRGBA:
		f, n := rgbFormat(m.Opaque(), false)
		return copy8(w, h, f.Set8bit(), 4, n, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.RGBA:
		f, n := rgbFormat(m.Opaque(), true)
		return copy8(w, h, f.Set8bit(), 4, n, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.NRGBA64:
		f, n := rgbFormat(m.Opaque(), false)
		return copy16(w, h, f.Set16bit(), 4, n, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	case *image.RGBA64:
		f, n := rgbFormat(m.Opaque(), true)
		return copy16(w, h, f.Set16bit(), 4, n, func(y int) []byte {
			return m.Pix[y*m.Stride:]
		})
	}
	return FromImage(imaging.Clone(img))
}

func rgbFormat(opaque, premultiplied bool) (raster.Format, int) {
	if opaque {
		return raster.RGB8(), 3
	}
	return raster.RGBA8().SetPremultipliedAlpha(premultiplied), 4
}

// copy8 copies w pixels per row, reading stride samples per pixel from
// src and keeping the first keep.
func copy8(w, h int, f raster.Format, stride, keep int, src func(y int) []byte) (*raster.Image, error) {
	out, err := raster.NewImage(w, h, f)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		if err := out.EnsureRowAllocated(y); err != nil {
			return nil, err
		}
		row, in := out.MustRow(y), src(y)
		if stride == keep {
			copy(row, in[:w*stride])
			continue
		}
		for x := 0; x < w; x++ {
			copy(row[x*keep:x*keep+keep], in[x*stride:])
		}
	}
	return out, nil
}

// copy16 is copy8 for big-endian 16-bit samples.
func copy16(w, h int, f raster.Format, stride, keep int, src func(y int) []byte) (*raster.Image, error) {
	out, err := raster.NewImage(w, h, f)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		if err := out.EnsureRowAllocated(y); err != nil {
			return nil, err
		}
		row, in := raster.RowSamples[uint16](out.MustRow(y)), src(y)
		for x := 0; x < w; x++ {
			for c := 0; c < keep; c++ {
				i := 2 * (x*stride + c)
				row[x*keep+c] = uint16(in[i])<<8 | uint16(in[i+1])
			}
		}
	}
	return out, nil
}

// ToImage converts a packed, unpremultiplied 8- or 16-bit greyscale, RGB
// or RGBA raster image to the matching image.Image type. Any other format
// is a TypeMismatch. With canFree each row is freed once copied.
func ToImage(img *raster.Image, canFree bool) (image.Image, error) {
	f := img.Format()
	w, h := img.Width(), img.Height()
	r := image.Rect(0, 0, w, h)
	if f.IsPlanar() || f.IsSwapped() || f.IsPremultipliedAlpha() || f.IsFP() {
		return nil, raster.TypeMismatchf("cannot encode %s", f)
	}

	var (
		out    image.Image
		pix    []byte
		stride int
		in     int // samples per source pixel
		ch     int // samples per output pixel
		wide   bool
	)
	switch {
	case f == raster.Grey8():
		m := image.NewGray(r)
		out, pix, stride, in, ch = m, m.Pix, m.Stride, 1, 1
	case f == raster.Grey16():
		m := image.NewGray16(r)
		out, pix, stride, in, ch, wide = m, m.Pix, m.Stride, 1, 1, true
	case f == raster.RGB8(), f == raster.RGBA8():
		m := image.NewNRGBA(r)
		out, pix, stride, in, ch = m, m.Pix, m.Stride, f.TotalChannels(), 4
	case f == raster.RGB16(), f == raster.RGBA16():
		m := image.NewNRGBA64(r)
		out, pix, stride, in, ch, wide = m, m.Pix, m.Stride, f.TotalChannels(), 4, true
	default:
		return nil, raster.TypeMismatchf("cannot encode %s", f)
	}

	for y := 0; y < h; y++ {
		row, err := img.Row(y)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", y, err)
		}
		dst := pix[y*stride:]
		if wide {
			src := raster.RowSamples[uint16](row)
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					v := uint16(0xffff)
					if c < in {
						v = src[x*in+c]
					}
					i := 2 * (x*ch + c)
					dst[i], dst[i+1] = byte(v>>8), byte(v)
				}
			}
		} else {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					v := byte(0xff)
					if c < in {
						v = row[x*in+c]
					}
					dst[x*ch+c] = v
				}
			}
		}
		if canFree {
			img.FreeRow(y)
		}
	}
	return out, nil
}
