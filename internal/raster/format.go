package raster

import (
	"fmt"
	"strings"
)

// ColourModel tags the colour space the channels of a pixel belong to.
type ColourModel uint8

const (
	ModelAny ColourModel = iota
	ModelGreyscale
	ModelRGB
	ModelCMY
	ModelCMYK
	ModelYCbCr
	ModelXYZ
	ModelLab
	// ModelMCH1 through ModelMCH15 are generic n-ink models.
	ModelMCH1
	ModelMCH2
	ModelMCH3
	ModelMCH4
	ModelMCH5
	ModelMCH6
	ModelMCH7
	ModelMCH8
	ModelMCH9
	ModelMCH10
	ModelMCH11
	ModelMCH12
	ModelMCH13
	ModelMCH14
	ModelMCH15
)

// MaxChannels is the largest total channel count (colour + extra) the
// processing core accepts.
const MaxChannels = 15

var modelNames = map[ColourModel]string{
	ModelAny:       "Any",
	ModelGreyscale: "Greyscale",
	ModelRGB:       "RGB",
	ModelCMY:       "CMY",
	ModelCMYK:      "CMYK",
	ModelYCbCr:     "YCbCr",
	ModelXYZ:       "XYZ",
	ModelLab:       "Lab",
}

func (m ColourModel) String() string {
	if n, ok := modelNames[m]; ok {
		return n
	}
	if m >= ModelMCH1 && m <= ModelMCH15 {
		return fmt.Sprintf("MCH%d", int(m-ModelMCH1)+1)
	}
	return fmt.Sprintf("ColourModel(%d)", int(m))
}

// DefaultChannels returns the number of colour channels implied by the model,
// or 0 when the model does not fix it (ModelAny).
func (m ColourModel) DefaultChannels() int {
	switch m {
	case ModelGreyscale:
		return 1
	case ModelRGB, ModelCMY, ModelYCbCr, ModelXYZ, ModelLab:
		return 3
	case ModelCMYK:
		return 4
	}
	if m >= ModelMCH1 && m <= ModelMCH15 {
		return int(m-ModelMCH1) + 1
	}
	return 0
}

// SampleType is the numeric encoding of one channel sample.
type SampleType uint8

const (
	SampleUint8 SampleType = iota
	SampleUint16
	SampleUint32
	SampleFloat32
	SampleFloat64
	SampleInvalid
)

func (t SampleType) String() string {
	switch t {
	case SampleUint8:
		return "uint8"
	case SampleUint16:
		return "uint16"
	case SampleUint32:
		return "uint32"
	case SampleFloat32:
		return "float32"
	case SampleFloat64:
		return "float64"
	}
	return "invalid"
}

// Format describes the binary layout of one pixel. It is a plain value:
// every Set method returns a modified copy and nothing is validated until
// the format is used to build an Image or a colour transform.
type Format struct {
	model    ColourModel
	channels int
	extra    int
	bytes    int
	float    bool
	planar   bool
	premult  bool
	swap     bool
}

// Named formats.

func Grey8() Format  { return Format{model: ModelGreyscale, channels: 1, bytes: 1} }
func Grey16() Format { return Format{model: ModelGreyscale, channels: 1, bytes: 2} }
func RGB8() Format   { return Format{model: ModelRGB, channels: 3, bytes: 1} }
func RGB16() Format  { return Format{model: ModelRGB, channels: 3, bytes: 2} }
func RGBA8() Format  { return Format{model: ModelRGB, channels: 3, extra: 1, bytes: 1} }
func RGBA16() Format { return Format{model: ModelRGB, channels: 3, extra: 1, bytes: 2} }
func CMYK8() Format  { return Format{model: ModelCMYK, channels: 4, bytes: 1} }

// LabFloat is the single precision Lab working format.
func LabFloat() Format { return Format{model: ModelLab, channels: 3, bytes: 4, float: true} }

// LabDouble is the double precision Lab working format.
func LabDouble() Format { return Format{model: ModelLab, channels: 3, bytes: 8, float: true} }

func (f Format) ColourModel() ColourModel   { return f.model }
func (f Format) Channels() int              { return f.channels }
func (f Format) ExtraChannels() int         { return f.extra }
func (f Format) TotalChannels() int         { return f.channels + f.extra }
func (f Format) BytesPerChannel() int       { return f.bytes }
func (f Format) BytesPerPixel() int         { return f.bytes * (f.channels + f.extra) }
func (f Format) IsFP() bool                 { return f.float }
func (f Format) IsInteger() bool            { return !f.float }
func (f Format) IsPlanar() bool             { return f.planar }
func (f Format) IsPacked() bool             { return !f.planar }
func (f Format) IsPremultipliedAlpha() bool { return f.premult }
func (f Format) IsSwapped() bool            { return f.swap }
func (f Format) Is8bit() bool               { return f.bytes == 1 && !f.float }
func (f Format) Is16bit() bool              { return f.bytes == 2 && !f.float }
func (f Format) Is32bit() bool              { return f.bytes == 4 && !f.float }
func (f Format) IsFloat() bool              { return f.bytes == 4 && f.float }
func (f Format) IsDouble() bool             { return f.bytes == 8 && f.float }

// SampleType returns the sample encoding, or SampleInvalid for combinations
// the core does not handle (e.g. half floats).
func (f Format) SampleType() SampleType {
	switch {
	case f.Is8bit():
		return SampleUint8
	case f.Is16bit():
		return SampleUint16
	case f.Is32bit():
		return SampleUint32
	case f.IsFloat():
		return SampleFloat32
	case f.IsDouble():
		return SampleFloat64
	}
	return SampleInvalid
}

// MaxScaleValue is the sample value that represents full intensity.
func (f Format) MaxScaleValue() float64 {
	switch f.SampleType() {
	case SampleUint8:
		return 255
	case SampleUint16:
		return 65535
	case SampleUint32:
		return 4294967295
	}
	return 1.0
}

// SetColourModel sets the model. When channels is omitted the colour channel
// count implied by the model is used; models that imply none keep the
// current count.
func (f Format) SetColourModel(m ColourModel, channels ...int) Format {
	f.model = m
	if len(channels) > 0 && channels[0] > 0 {
		f.channels = channels[0]
	} else if n := m.DefaultChannels(); n > 0 {
		f.channels = n
	}
	return f
}

func (f Format) SetChannels(n int) Format      { f.channels = n; return f }
func (f Format) SetExtraChannels(n int) Format { f.extra = n; return f }
func (f Format) Set8bit() Format               { f.bytes, f.float = 1, false; return f }
func (f Format) Set16bit() Format              { f.bytes, f.float = 2, false; return f }
func (f Format) Set32bit() Format              { f.bytes, f.float = 4, false; return f }
func (f Format) SetFloat() Format              { f.bytes, f.float = 4, true; return f }
func (f Format) SetDouble() Format             { f.bytes, f.float = 8, true; return f }
func (f Format) SetPlanar(p bool) Format       { f.planar = p; return f }
func (f Format) SetPremultipliedAlpha(p bool) Format {
	f.premult = p
	return f
}
func (f Format) SetSwap(s bool) Format { f.swap = s; return f }

// Validate checks the format is internally consistent. It is called by
// NewImage and by colour transform construction.
func (f Format) Validate() error {
	if f.channels < 1 {
		return TypeMismatchf("format %s has no colour channels", f)
	}
	if f.TotalChannels() > MaxChannels {
		return TypeMismatchf("format %s has %d channels, at most %d are supported", f, f.TotalChannels(), MaxChannels)
	}
	if n := f.model.DefaultChannels(); n > 0 && n != f.channels {
		return TypeMismatchf("colour model %s needs %d channels, format has %d", f.model, n, f.channels)
	}
	if f.SampleType() == SampleInvalid {
		return TypeMismatchf("unsupported sample encoding: %d bytes, float=%v", f.bytes, f.float)
	}
	return nil
}

// String renders the format in a compact form such as "RGBA16" or "Lab DBL planar".
func (f Format) String() string {
	var sb strings.Builder
	switch f.model {
	case ModelGreyscale:
		sb.WriteString("Grey")
	default:
		sb.WriteString(f.model.String())
	}
	if f.extra > 0 {
		sb.WriteString(strings.Repeat("A", f.extra))
	}
	switch f.SampleType() {
	case SampleUint8:
		sb.WriteString("8")
	case SampleUint16:
		sb.WriteString("16")
	case SampleUint32:
		sb.WriteString("32")
	case SampleFloat32:
		sb.WriteString(" FLT")
	case SampleFloat64:
		sb.WriteString(" DBL")
	default:
		fmt.Fprintf(&sb, " %dB?", f.bytes)
	}
	if f.premult {
		sb.WriteString(" premult")
	}
	if f.swap {
		sb.WriteString(" swap")
	}
	if f.planar {
		sb.WriteString(" planar")
	}
	return sb.String()
}
