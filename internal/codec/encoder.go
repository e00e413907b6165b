package codec

import (
	"image"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Encoder encodes an image to a specific format.
type Encoder interface {
	// Format returns the output format name (e.g. "jpeg", "webp", "avif", "png", "tiff").
	Format() string

	// Extension returns the file extension without dot.
	Extension() string

	// Available returns true if the encoder is ready to use.
	// External encoders (cwebp, avifenc) may not be installed.
	Available() bool

	// PreferredFormat returns the pixel format closest to requested that
	// the encoder can write. The final colour transform produces this
	// format.
	PreferredFormat(requested raster.Format) raster.Format

	// Encode converts the image to bytes.
	Encode(img image.Image, opts Options) ([]byte, error)
}

// Options carries the per-destination encoder settings.
type Options struct {
	// Quality is used by lossy encoders, 1-100.
	Quality int
	// Compression is used by lossless encoders; the accepted names depend
	// on the format.
	Compression string
}

func (o Options) quality() int {
	if o.Quality <= 0 || o.Quality > 100 {
		return 90
	}
	return o.Quality
}

// packed8 is the preferred format of encoders that only write 8-bit
// greyscale or RGB, with an optional alpha channel.
func packed8(requested raster.Format, alpha bool) raster.Format {
	switch {
	case alpha && requested.ExtraChannels() > 0:
		return raster.RGBA8()
	case requested.ColourModel() == raster.ModelGreyscale:
		return raster.Grey8()
	}
	return raster.RGB8()
}

// packed16 is packed8 keeping 16-bit samples when more than 8 bits were asked for.
func packed16(requested raster.Format) raster.Format {
	f := packed8(requested, true)
	if requested.BytesPerChannel() > 1 {
		f = f.Set16bit()
	}
	return f
}
