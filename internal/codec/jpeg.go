package codec

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// JPEGEncoder writes baseline JPEG through imaging.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() string    { return "jpeg" }
func (e *JPEGEncoder) Extension() string { return "jpg" }
func (e *JPEGEncoder) Available() bool   { return true }

// PreferredFormat is 8-bit greyscale or RGB; alpha is dropped.
func (e *JPEGEncoder) PreferredFormat(requested raster.Format) raster.Format {
	return packed8(requested, false)
}

func (e *JPEGEncoder) Encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024) // typical photo size

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.quality())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
