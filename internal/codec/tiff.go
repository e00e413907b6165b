package codec

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// TIFFEncoder writes 8- or 16-bit TIFF.
type TIFFEncoder struct{}

func (e *TIFFEncoder) Format() string    { return "tiff" }
func (e *TIFFEncoder) Extension() string { return "tif" }
func (e *TIFFEncoder) Available() bool   { return true }

func (e *TIFFEncoder) PreferredFormat(requested raster.Format) raster.Format {
	return packed16(requested)
}

func (e *TIFFEncoder) Encode(img image.Image, opts Options) ([]byte, error) {
	var o tiff.Options
	switch strings.ToLower(opts.Compression) {
	case "", "deflate":
		o = tiff.Options{Compression: tiff.Deflate, Predictor: true}
	case "none":
		o = tiff.Options{Compression: tiff.Uncompressed}
	default:
		return nil, fmt.Errorf("unknown tiff compression %q", opts.Compression)
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
