package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// PNGEncoder writes 8- or 16-bit PNG through imaging.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() string    { return "png" }
func (e *PNGEncoder) Extension() string { return "png" }
func (e *PNGEncoder) Available() bool   { return true }

func (e *PNGEncoder) PreferredFormat(requested raster.Format) raster.Format {
	return packed16(requested)
}

func (e *PNGEncoder) Encode(img image.Image, opts Options) ([]byte, error) {
	level, err := pngLevel(opts.Compression)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(512 * 1024)

	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(level)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pngLevel(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(name) {
	case "", "best":
		return png.BestCompression, nil
	case "default":
		return png.DefaultCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "none":
		return png.NoCompression, nil
	}
	return 0, fmt.Errorf("unknown png compression %q", name)
}
