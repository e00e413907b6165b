// Package raster holds the image data model shared by the processing core:
// a runtime-described pixel Format and a row-addressable Image whose rows
// can be allocated and freed one at a time to bound memory in streaming
// pipelines.
package raster

import (
	"unsafe"
)

// Profile is an opaque colour profile handle attached to an Image.
// The cms package provides the implementations.
type Profile interface {
	Name() string
	ColourModel() ColourModel
}

// Image is a grid of pixel rows in a given Format. Rows start unallocated;
// a producer calls EnsureRowAllocated before writing a row and a consumer
// may FreeRow once it no longer needs it.
//
// Distinct rows may be allocated, written and freed from different
// goroutines concurrently. Operations on the same row must be serialised
// by the caller.
type Image struct {
	width, height int
	format        Format
	profile       Profile
	xres, yres    float64
	hasX, hasY    bool
	rows          [][]byte
}

// NewImage creates an image with all rows unallocated.
func NewImage(width, height int, format Format) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, Preconditionf("invalid image size %dx%d", width, height)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Image{
		width:  width,
		height: height,
		format: format,
		rows:   make([][]byte, height),
	}, nil
}

func (img *Image) Width() int       { return img.width }
func (img *Image) Height() int      { return img.height }
func (img *Image) Format() Format   { return img.format }
func (img *Image) Profile() Profile { return img.profile }

// SetProfile attaches a profile. nil means "default profile for the colour model".
func (img *Image) SetProfile(p Profile) { img.profile = p }

// RowBytes is the length of every allocated row.
func (img *Image) RowBytes() int { return img.width * img.format.BytesPerPixel() }

// XResolution returns the horizontal resolution in PPI, if defined.
func (img *Image) XResolution() (float64, bool) { return img.xres, img.hasX }

// YResolution returns the vertical resolution in PPI, if defined.
func (img *Image) YResolution() (float64, bool) { return img.yres, img.hasY }

func (img *Image) SetXResolution(ppi float64) { img.xres, img.hasX = ppi, true }
func (img *Image) SetYResolution(ppi float64) { img.yres, img.hasY = ppi, true }

// SetResolution sets both axes.
func (img *Image) SetResolution(ppi float64) {
	img.SetXResolution(ppi)
	img.SetYResolution(ppi)
}

// CopyMetadata copies the profile and resolution of other, leaving
// undefined resolutions undefined.
func (img *Image) CopyMetadata(other *Image) {
	img.profile = other.profile
	img.xres, img.hasX = other.xres, other.hasX
	img.yres, img.hasY = other.yres, other.hasY
}

// EnsureRowAllocated allocates row y if it is not allocated. It is idempotent.
func (img *Image) EnsureRowAllocated(y int) error {
	if y < 0 || y >= img.height {
		return ErrOutOfRange
	}
	if img.rows[y] == nil {
		img.rows[y] = allocRow(img.RowBytes())
	}
	return nil
}

// IsRowAllocated reports whether row y currently holds pixel data.
func (img *Image) IsRowAllocated(y int) bool {
	return y >= 0 && y < img.height && img.rows[y] != nil
}

// Row returns row y. Reading a row that was never allocated, or was freed,
// fails with ErrRowNotAllocated.
func (img *Image) Row(y int) ([]byte, error) {
	if y < 0 || y >= img.height {
		return nil, ErrOutOfRange
	}
	r := img.rows[y]
	if r == nil {
		return nil, ErrRowNotAllocated
	}
	return r, nil
}

// MustRow is Row for callers that have already established the row exists.
func (img *Image) MustRow(y int) []byte {
	r, err := img.Row(y)
	if err != nil {
		panic(err)
	}
	return r
}

// FreeRow releases row y. Freeing an unallocated row is a no-op.
func (img *Image) FreeRow(y int) {
	if y >= 0 && y < img.height {
		img.rows[y] = nil
	}
}

// AllocateAll allocates every row.
func (img *Image) AllocateAll() {
	for y := range img.rows {
		if img.rows[y] == nil {
			img.rows[y] = allocRow(img.RowBytes())
		}
	}
}

// Clone returns a deep copy. Unallocated rows stay unallocated.
func (img *Image) Clone() *Image {
	c := &Image{
		width:  img.width,
		height: img.height,
		format: img.format,
		rows:   make([][]byte, img.height),
	}
	c.CopyMetadata(img)
	for y, r := range img.rows {
		if r != nil {
			c.rows[y] = allocRow(len(r))
			copy(c.rows[y], r)
		}
	}
	return c
}

// allocRow returns a zeroed row whose backing array is 8-byte aligned so it
// can be viewed as any Sample type.
func allocRow(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
