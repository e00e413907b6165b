package cms

import (
	"fmt"
	"unsafe"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Flags modify transform construction.
type Flags uint32

const (
	// FlagCopyExtra copies extra (alpha) channels from source to destination,
	// rescaled to the destination encoding. Without it the destination's
	// extra channels are left untouched.
	FlagCopyExtra Flags = 1 << iota
)

// Transform converts pixels between two profile/format pairs. It holds no
// mutable state; Apply may be called from many goroutines at once.
type Transform struct {
	src, dst  *Profile
	in, out   layout
	intent    Intent
	flags     Flags
	sameSpace bool
	copyOnly  bool
}

// NewTransform builds a transform from srcProfile/srcFmt to
// dstProfile/dstFmt. A nil profile selects DefaultProfile for the format's
// colour model. Formats whose model or channel count disagrees with their
// profile fail with ErrTypeMismatch; profile pairs or intents the engine
// cannot handle fail with a *raster.LibraryError.
func NewTransform(srcProfile *Profile, srcFmt raster.Format, dstProfile *Profile, dstFmt raster.Format, intent Intent, flags Flags) (*Transform, error) {
	src, err := bindProfile(srcProfile, srcFmt)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dst, err := bindProfile(dstProfile, dstFmt)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if flags&FlagCopyExtra != 0 && srcFmt.ExtraChannels() != dstFmt.ExtraChannels() {
		return nil, raster.TypeMismatchf("cannot copy %d extra channels into %d", srcFmt.ExtraChannels(), dstFmt.ExtraChannels())
	}
	if intent < IntentPerceptual || intent > IntentAbsoluteColorimetric {
		return nil, &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf("unsupported rendering intent %d", int(intent))}
	}
	t := &Transform{
		src:       src,
		dst:       dst,
		in:        newLayout(srcFmt),
		out:       newLayout(dstFmt),
		intent:    intent,
		flags:     flags,
		sameSpace: src == dst,
	}
	t.copyOnly = t.sameSpace && srcFmt == dstFmt && (srcFmt.ExtraChannels() == 0 || flags&FlagCopyExtra != 0)
	return t, nil
}

func bindProfile(p *Profile, f raster.Format) (*Profile, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.IsPremultipliedAlpha() {
		return nil, raster.TypeMismatchf("format %s: premultiplied alpha must be removed before a colour transform", f)
	}
	if p == nil {
		var err error
		if p, err = DefaultProfile(f.ColourModel()); err != nil {
			return nil, err
		}
	}
	if m := f.ColourModel(); m != raster.ModelAny && m != p.ColourModel() {
		return nil, raster.TypeMismatchf("format %s does not match %s profile %q", f, p.ColourModel(), p.Name())
	}
	if f.Channels() != p.Channels() {
		return nil, raster.TypeMismatchf("format %s has %d colour channels, profile %q has %d", f, f.Channels(), p.Name(), p.Channels())
	}
	return p, nil
}

// SourceProfile returns the resolved source profile.
func (t *Transform) SourceProfile() *Profile { return t.src }

// DestinationProfile returns the resolved destination profile.
func (t *Transform) DestinationProfile() *Profile { return t.dst }

func (t *Transform) SourceFormat() raster.Format      { return t.in.f }
func (t *Transform) DestinationFormat() raster.Format { return t.out.f }
func (t *Transform) Intent() Intent                   { return t.intent }

// Apply converts n pixels from src to dst. For planar formats each plane
// is assumed to hold exactly n samples.
func (t *Transform) Apply(src, dst []byte, n int) error {
	return t.ApplyPlanar(src, dst, n, n*t.in.bytes, n*t.out.bytes)
}

// ApplyPlanar converts n pixels whose planes are srcStride and dstStride
// bytes apart. Strides are ignored for packed formats.
func (t *Transform) ApplyPlanar(src, dst []byte, n, srcStride, dstStride int) error {
	if n < 0 {
		return raster.Preconditionf("negative pixel count %d", n)
	}
	if n == 0 {
		return nil
	}
	if need := t.in.span(n, srcStride); len(src) < need {
		return raster.Preconditionf("source buffer holds %d bytes, %d pixels need %d", len(src), n, need)
	}
	if need := t.out.span(n, dstStride); len(dst) < need {
		return raster.Preconditionf("destination buffer holds %d bytes, %d pixels need %d", len(dst), n, need)
	}
	if t.copyOnly {
		t.copy(src, dst, n, srcStride, dstStride)
		return nil
	}

	var dev, res [raster.MaxChannels]float64
	inColour, outColour := t.in.f.Channels(), t.out.f.Channels()
	extra := t.out.f.ExtraChannels()
	for i := 0; i < n; i++ {
		for c := 0; c < inColour; c++ {
			dev[c] = t.in.decode(c, t.in.read(src, t.in.offset(i, c, srcStride)))
		}
		if t.sameSpace {
			res = dev
		} else {
			x, y, z := t.src.toPCS(dev[:inColour])
			t.dst.fromPCS(x, y, z, res[:outColour])
		}
		for c := 0; c < outColour; c++ {
			t.out.write(dst, t.out.offset(i, c, dstStride), t.out.encode(c, res[c]))
		}
		if t.flags&FlagCopyExtra != 0 {
			for e := 0; e < extra; e++ {
				v := t.in.read(src, t.in.offset(i, inColour+e, srcStride)) / t.in.max
				t.out.write(dst, t.out.offset(i, outColour+e, dstStride), v*t.out.max)
			}
		}
	}
	return nil
}

func (t *Transform) copy(src, dst []byte, n, srcStride, dstStride int) {
	if t.in.f.IsPacked() {
		copy(dst[:n*t.in.bpp], src)
		return
	}
	plane := n * t.in.bytes
	for s := 0; s < t.in.total; s++ {
		copy(dst[s*dstStride:s*dstStride+plane], src[s*srcStride:s*srcStride+plane])
	}
}

// layout resolves sample addressing and encoding for one side of a transform.
type layout struct {
	f     raster.Format
	bytes int
	bpp   int
	total int
	max   float64
	lab   bool
	read  func(b []byte, off int) float64
	write func(b []byte, off int, v float64)
}

func newLayout(f raster.Format) layout {
	l := layout{
		f:     f,
		bytes: f.BytesPerChannel(),
		bpp:   f.BytesPerPixel(),
		total: f.TotalChannels(),
		max:   f.MaxScaleValue(),
		lab:   f.ColourModel() == raster.ModelLab,
	}
	l.read, l.write = sampleAccess(f.SampleType())
	return l
}

// offset returns the byte offset of logical channel c of pixel i.
func (l *layout) offset(i, c, planeStride int) int {
	if l.f.IsSwapped() {
		c = l.total - 1 - c
	}
	if l.f.IsPlanar() {
		return c*planeStride + i*l.bytes
	}
	return i*l.bpp + c*l.bytes
}

func (l *layout) span(n, planeStride int) int {
	if l.f.IsPlanar() {
		return (l.total-1)*planeStride + n*l.bytes
	}
	return n * l.bpp
}

// decode maps a stored colour sample to a device value: [0,1] for device
// spaces, L in [0,100] and a/b in [-128,127] for Lab.
func (l *layout) decode(c int, raw float64) float64 {
	if l.lab {
		if l.f.IsFP() {
			return raw
		}
		if c == 0 {
			return raw * 100 / l.max
		}
		return raw*255/l.max - 128
	}
	if l.f.IsFP() {
		return raw
	}
	return raw / l.max
}

func (l *layout) encode(c int, v float64) float64 {
	if l.lab {
		if l.f.IsFP() {
			return v
		}
		if c == 0 {
			return v * l.max / 100
		}
		return (v + 128) * l.max / 255
	}
	if l.f.IsFP() {
		return v
	}
	return v * l.max
}

func sampleAccess(t raster.SampleType) (func([]byte, int) float64, func([]byte, int, float64)) {
	switch t {
	case raster.SampleUint8:
		return func(b []byte, off int) float64 { return float64(b[off]) },
			func(b []byte, off int, v float64) { b[off] = raster.FromFloat[uint8](v) }
	case raster.SampleUint16:
		return func(b []byte, off int) float64 { return float64(*(*uint16)(unsafe.Pointer(&b[off]))) },
			func(b []byte, off int, v float64) { *(*uint16)(unsafe.Pointer(&b[off])) = raster.FromFloat[uint16](v) }
	case raster.SampleUint32:
		return func(b []byte, off int) float64 { return float64(*(*uint32)(unsafe.Pointer(&b[off]))) },
			func(b []byte, off int, v float64) { *(*uint32)(unsafe.Pointer(&b[off])) = raster.FromFloat[uint32](v) }
	case raster.SampleFloat32:
		return func(b []byte, off int) float64 { return float64(*(*float32)(unsafe.Pointer(&b[off]))) },
			func(b []byte, off int, v float64) { *(*float32)(unsafe.Pointer(&b[off])) = float32(v) }
	}
	return func(b []byte, off int) float64 { return *(*float64)(unsafe.Pointer(&b[off])) },
		func(b []byte, off int, v float64) { *(*float64)(unsafe.Pointer(&b[off])) = v }
}
