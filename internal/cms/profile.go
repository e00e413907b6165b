package cms

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode/utf16"

	"github.com/mandykoh/prism/adobergb"
	"github.com/mandykoh/prism/ciexyy"
	"github.com/mandykoh/prism/ciexyz"
	"github.com/mandykoh/prism/matrix"
	"github.com/mandykoh/prism/meta/icc"
	"github.com/mandykoh/prism/srgb"

	"github.com/AnyUserName/photofinish/internal/raster"
)

const maxProfileSize = 4 * 1024 * 1024

type profileKind uint8

const (
	kindMatrixTRC profileKind = iota
	kindGrey
	kindLab
	kindNaiveCMYK
)

// Profile is a colour profile the engine can convert through the D50 PCS:
// a built-in profile or an ICC matrix/TRC (RGB) or grey TRC profile.
// Profiles are immutable and safe for concurrent use.
type Profile struct {
	name    string
	model   raster.ColourModel
	kind    profileKind
	trc     [3]Curve
	toXYZ   mat3
	fromXYZ mat3
	info    *ProfileInfo
}

func (p *Profile) Name() string                    { return p.name }
func (p *Profile) ColourModel() raster.ColourModel { return p.model }

// Channels is the number of colour channels of the profile's device space.
func (p *Profile) Channels() int { return p.model.DefaultChannels() }

// Info returns the parsed ICC header, or nil for built-in profiles.
func (p *Profile) Info() *ProfileInfo { return p.info }

func (p *Profile) String() string { return p.name }

// pcsWhite is the ICC D50 illuminant.
var pcsWhite = ciexyz.Color{X: D50X, Y: D50Y, Z: D50Z}

// primariesToPCS builds the RGB to D50 XYZ matrix of a colour space given
// by xyY chromaticities, Bradford adapted from its own white point.
func primariesToPCS(r, g, b, white ciexyy.Color) mat3 {
	m := ciexyz.TransformToXYZForXYYPrimaries(r, g, b, white)
	ca := ciexyz.AdaptBetweenXYZWhitePoints(ciexyz.ColorFromXYY(white), pcsWhite)
	a := matrix.Matrix3(ca).MulM(m)
	// One column vector per primary.
	return colorantMatrix(a[0], a[1], a[2])
}

var (
	srgbToPCS  = primariesToPCS(srgb.PrimaryRed, srgb.PrimaryGreen, srgb.PrimaryBlue, srgb.StandardWhitePoint)
	adobeToPCS = primariesToPCS(adobergb.PrimaryRed, adobergb.PrimaryGreen, adobergb.PrimaryBlue, adobergb.StandardWhitePoint)
)

func newMatrixProfile(name string, m mat3, trc [3]Curve) (*Profile, error) {
	inv, ok := m.inverse()
	if !ok {
		return nil, &raster.LibraryError{Lib: "cms", Msg: "profile " + name + " has a singular colorant matrix"}
	}
	return &Profile{name: name, model: raster.ModelRGB, kind: kindMatrixTRC, trc: trc, toXYZ: m, fromXYZ: inv}, nil
}

func mustMatrixProfile(name string, m mat3, c Curve) *Profile {
	p, err := newMatrixProfile(name, m, [3]Curve{c, c, c})
	if err != nil {
		panic(err)
	}
	return p
}

var (
	srgbProfile      = mustMatrixProfile("sRGB", srgbToPCS, srgbCurve{})
	adobeRGBProfile  = mustMatrixProfile("AdobeRGB", adobeToPCS, gammaCurve{g: 563.0 / 256.0})
	linearRGBProfile = mustMatrixProfile("LinearRGB", srgbToPCS, identityCurve{})
	greyProfile      = &Profile{name: "Grey", model: raster.ModelGreyscale, kind: kindGrey, trc: [3]Curve{srgbCurve{}}}
	labProfile       = &Profile{name: "Lab", model: raster.ModelLab, kind: kindLab}
	naiveCMYKProfile = &Profile{name: "CMYK", model: raster.ModelCMYK, kind: kindNaiveCMYK}
)

// SRGB returns the built-in sRGB profile.
func SRGB() *Profile { return srgbProfile }

// AdobeRGB returns the built-in Adobe RGB (1998) compatible profile.
func AdobeRGB() *Profile { return adobeRGBProfile }

// LinearRGB returns sRGB primaries with a linear tone curve.
func LinearRGB() *Profile { return linearRGBProfile }

// GreyProfile returns a D50 grey profile with the sRGB tone curve.
func GreyProfile() *Profile { return greyProfile }

// LabProfile returns the CIE Lab (D50) working space profile.
func LabProfile() *Profile { return labProfile }

// NaiveCMYK returns a device CMYK profile defined by the complement of sRGB
// with full black generation. It is not a press profile.
func NaiveCMYK() *Profile { return naiveCMYKProfile }

// DefaultProfile returns the built-in profile used for images of model m
// that carry no profile of their own.
func DefaultProfile(m raster.ColourModel) (*Profile, error) {
	switch m {
	case raster.ModelGreyscale:
		return greyProfile, nil
	case raster.ModelRGB:
		return srgbProfile, nil
	case raster.ModelLab:
		return labProfile, nil
	case raster.ModelCMYK:
		return naiveCMYKProfile, nil
	}
	return nil, &raster.LibraryError{Lib: "cms", Msg: "no default profile for colour model " + m.String()}
}

// ProfileByName returns a built-in profile by case-insensitive name.
func ProfileByName(name string) (*Profile, bool) {
	switch strings.ToLower(name) {
	case "srgb":
		return srgbProfile, true
	case "adobergb", "adobe rgb", "adobe rgb (1998)":
		return adobeRGBProfile, true
	case "linearrgb", "linear rgb":
		return linearRGBProfile, true
	case "grey", "gray", "greyscale", "grayscale":
		return greyProfile, true
	case "lab":
		return labProfile, true
	case "cmyk":
		return naiveCMYKProfile, true
	}
	return nil, false
}

// ProfileInfo contains metadata parsed from an ICC profile header.
type ProfileInfo struct {
	Size        uint32
	Version     string
	ColorSpace  icc.ColorSpace
	PCS         icc.ColorSpace
	Class       icc.DeviceClass
	Description string
}

// ParseProfileInfo reads the ICC header and description of raw profile bytes.
func ParseProfileInfo(data []byte) (*ProfileInfo, error) {
	if len(data) < 128 {
		return nil, errors.New("ICC profile too short (< 128 bytes)")
	}
	if len(data) > maxProfileSize {
		return nil, fmt.Errorf("ICC profile too large (%d bytes, max %d)", len(data), maxProfileSize)
	}
	p, err := icc.NewProfileReader(bytes.NewReader(data)).ReadProfile()
	if err != nil {
		return nil, err
	}
	h := p.Header
	return &ProfileInfo{
		Size:        h.ProfileSize,
		Version:     h.Version.String(),
		ColorSpace:  h.DataColorSpace,
		PCS:         h.ProfileConnectionSpace,
		Class:       h.DeviceClass,
		Description: description(p, data),
	}, nil
}

// description returns the profile's 'desc' text, or "" when it is missing
// or malformed. A v2 textDescriptionType is read by prism once its length
// is known to be sane; a v4 multiLocalizedUnicodeType is decoded here, since
// prism takes the UTF-16 text from the record table instead of the string
// offset.
func description(p *icc.Profile, data []byte) string {
	tags, err := readTagTable(data)
	if err != nil {
		return ""
	}
	b, ok := tags.tags["desc"]
	if !ok || len(b) < 12 {
		return ""
	}
	switch string(b[0:4]) {
	case "desc":
		n := int(binary.BigEndian.Uint32(b[8:12]))
		if n <= 0 || 12+n > len(b) {
			return ""
		}
		d, err := p.Description()
		if err != nil {
			return ""
		}
		return strings.TrimRight(d, "\x00")
	case "mluc":
		if len(b) < 28 {
			return ""
		}
		size := int(binary.BigEndian.Uint32(b[20:24]))
		off := int(binary.BigEndian.Uint32(b[24:28]))
		if off+size > len(b) || size%2 != 0 {
			return ""
		}
		u := make([]uint16, size/2)
		for i := range u {
			u[i] = binary.BigEndian.Uint16(b[off+2*i:])
		}
		return strings.TrimRight(string(utf16.Decode(u)), "\x00")
	}
	return ""
}

// LoadProfile reads and opens an ICC profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ICC profile: %w", err)
	}
	p, err := OpenProfile(data)
	if err != nil {
		return nil, fmt.Errorf("opening ICC profile %s: %w", path, err)
	}
	return p, nil
}

// OpenProfile parses ICC profile bytes. Matrix/TRC RGB profiles and grey
// TRC profiles with an XYZ PCS are supported; anything else (LUT based
// printer profiles, device links) is rejected with a LibraryError.
func OpenProfile(data []byte) (*Profile, error) {
	info, err := ParseProfileInfo(data)
	if err != nil {
		return nil, &raster.LibraryError{Lib: "cms", Msg: err.Error()}
	}
	tags, err := readTagTable(data)
	if err != nil {
		return nil, err
	}
	libErr := func(format string, args ...any) error {
		return &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf(format, args...)}
	}
	if info.PCS != icc.ColorSpaceXYZ {
		return nil, libErr("unsupported profile connection space %v", info.PCS)
	}

	name := info.Description
	var p *Profile
	switch info.ColorSpace {
	case icc.ColorSpaceRGB:
		var xyz [3][3]float64
		var trc [3]Curve
		for i, ch := range []string{"r", "g", "b"} {
			if xyz[i], err = tags.xyz(ch + "XYZ"); err != nil {
				return nil, err
			}
			if trc[i], err = tags.curve(ch + "TRC"); err != nil {
				return nil, err
			}
		}
		if name == "" {
			name = "ICC RGB"
		}
		if p, err = newMatrixProfile(name, colorantMatrix(xyz[0], xyz[1], xyz[2]), trc); err != nil {
			return nil, err
		}
	case icc.ColorSpaceGray:
		c, err := tags.curve("kTRC")
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = "ICC Grey"
		}
		p = &Profile{name: name, model: raster.ModelGreyscale, kind: kindGrey, trc: [3]Curve{c}}
	default:
		return nil, libErr("unsupported ICC colour space %v (class %v)", info.ColorSpace, info.Class)
	}
	p.info = info
	return p, nil
}

type tagTable struct {
	data []byte
	tags map[string][]byte
}

func readTagTable(data []byte) (tagTable, error) {
	t := tagTable{data: data, tags: map[string][]byte{}}
	if len(data) < 132 {
		return t, &raster.LibraryError{Lib: "cms", Msg: "ICC profile has no tag table"}
	}
	n := int(binary.BigEndian.Uint32(data[128:132]))
	if 132+n*12 > len(data) {
		return t, &raster.LibraryError{Lib: "cms", Msg: "ICC tag table truncated"}
	}
	for i := 0; i < n; i++ {
		e := data[132+i*12:]
		sig := string(e[0:4])
		off := int(binary.BigEndian.Uint32(e[4:8]))
		size := int(binary.BigEndian.Uint32(e[8:12]))
		if off < 0 || size < 8 || off+size > len(data) {
			return t, &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf("ICC tag %q out of bounds", sig)}
		}
		t.tags[sig] = data[off : off+size]
	}
	return t, nil
}

func (t tagTable) get(sig string) ([]byte, error) {
	b, ok := t.tags[sig]
	if !ok {
		return nil, &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf("ICC tag %q not found", sig)}
	}
	return b, nil
}

func s15Fixed16(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 65536.0
}

func (t tagTable) xyz(sig string) ([3]float64, error) {
	b, err := t.get(sig)
	if err != nil {
		return [3]float64{}, err
	}
	if string(b[0:4]) != "XYZ " || len(b) < 20 {
		return [3]float64{}, &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf("ICC tag %q is not an XYZ tag", sig)}
	}
	return [3]float64{s15Fixed16(b[8:]), s15Fixed16(b[12:]), s15Fixed16(b[16:])}, nil
}

var paraCount = [5]int{1, 3, 4, 5, 7}

func (t tagTable) curve(sig string) (Curve, error) {
	b, err := t.get(sig)
	if err != nil {
		return nil, err
	}
	bad := &raster.LibraryError{Lib: "cms", Msg: fmt.Sprintf("ICC tag %q is malformed", sig)}
	switch string(b[0:4]) {
	case "curv":
		if len(b) < 12 {
			return nil, bad
		}
		n := int(binary.BigEndian.Uint32(b[8:12]))
		if len(b) < 12+2*n {
			return nil, bad
		}
		switch n {
		case 0:
			return identityCurve{}, nil
		case 1:
			return gammaCurve{g: float64(binary.BigEndian.Uint16(b[12:14])) / 256.0}, nil
		}
		table := make([]float64, n)
		for i := range table {
			table[i] = float64(binary.BigEndian.Uint16(b[12+2*i:])) / 65535.0
		}
		return sample(func(v float64) float64 { return interp(table, v) }, max(n, 2)), nil
	case "para":
		if len(b) < 12 {
			return nil, bad
		}
		kind := int(binary.BigEndian.Uint16(b[8:10]))
		if kind >= len(paraCount) || len(b) < 12+4*paraCount[kind] {
			return nil, bad
		}
		params := make([]float64, paraCount[kind])
		for i := range params {
			params[i] = s15Fixed16(b[12+4*i:])
		}
		if kind == 3 && isSRGBParams(params) {
			return srgbCurve{}, nil
		}
		return parametricCurve(kind, params), nil
	}
	return nil, bad
}

func isSRGBParams(p []float64) bool {
	ref := []float64{2.4, 1 / 1.055, 0.055 / 1.055, 1 / 12.92, 0.04045}
	for i := range ref {
		if math.Abs(p[i]-ref[i]) > 1e-3 {
			return false
		}
	}
	return true
}

// toPCS converts device values (normalised to [0,1], or Lab units for a Lab
// profile) to D50 XYZ.
func (p *Profile) toPCS(dev []float64) (x, y, z float64) {
	switch p.kind {
	case kindMatrixTRC:
		return p.toXYZ.apply(p.trc[0].Linear(dev[0]), p.trc[1].Linear(dev[1]), p.trc[2].Linear(dev[2]))
	case kindGrey:
		l := p.trc[0].Linear(dev[0])
		return l * D50X, l * D50Y, l * D50Z
	case kindLab:
		return LabToXYZ(dev[0], dev[1], dev[2])
	case kindNaiveCMYK:
		k := 1 - dev[3]
		var rgb [3]float64
		for i := range rgb {
			rgb[i] = (1 - dev[i]) * k
		}
		return srgbProfile.toPCS(rgb[:])
	}
	return 0, 0, 0
}

// fromPCS converts D50 XYZ to device values, clipping to the device gamut.
func (p *Profile) fromPCS(x, y, z float64, dev []float64) {
	switch p.kind {
	case kindMatrixTRC:
		r, g, b := p.fromXYZ.apply(x, y, z)
		dev[0] = p.trc[0].Encode(clamp01(r))
		dev[1] = p.trc[1].Encode(clamp01(g))
		dev[2] = p.trc[2].Encode(clamp01(b))
	case kindGrey:
		dev[0] = p.trc[0].Encode(clamp01(y / D50Y))
	case kindLab:
		dev[0], dev[1], dev[2] = XYZToLab(x, y, z)
	case kindNaiveCMYK:
		var rgb [3]float64
		srgbProfile.fromPCS(x, y, z, rgb[:])
		k := 1 - math.Max(rgb[0], math.Max(rgb[1], rgb[2]))
		dev[3] = k
		if k >= 1 {
			dev[0], dev[1], dev[2] = 0, 0, 0
			return
		}
		for i := range rgb {
			dev[i] = (1 - rgb[i] - k) / (1 - k)
		}
	}
}

func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
