package destination

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AnyUserName/photofinish/internal/cms"
	"github.com/AnyUserName/photofinish/internal/frame"
	"github.com/AnyUserName/photofinish/internal/raster"
	"github.com/AnyUserName/photofinish/internal/resample"
	"github.com/AnyUserName/photofinish/internal/sharpen"
)

// Destination defines how a source image is prepared for one output
// medium: which crops to cut, how to resample and sharpen them, and the
// colour space and file format they are written in.
//
// Optional numeric fields are pointers so that "not set" can be told
// apart from zero.
type Destination struct {
	Name      string            `yaml:"name"`
	Dir       string            `yaml:"dir"`
	Size      *float64          `yaml:"size"`   // long edge in inches
	Format    string            `yaml:"format"` // jpeg, png, tiff, webp, avif
	Depth     *int              `yaml:"depth"`  // 8 or 16
	NoResize  bool              `yaml:"noresize"`
	Intent    string            `yaml:"intent"`
	ForceRGB  bool              `yaml:"forcergb"`
	ForceGrey bool              `yaml:"forcegrey"`
	Sharpen   *Sharpen          `yaml:"sharpen"`
	Resize    *Resize           `yaml:"resize"`
	Targets   map[string]Target `yaml:"targets"`
	Profile   *ProfileRef       `yaml:"profile"`
	JPEG      *JPEG             `yaml:"jpeg"`
	PNG       *PNG              `yaml:"png"`
	TIFF      *TIFF             `yaml:"tiff"`
	WebP      *WebP             `yaml:"webp"`
}

// Sharpen configures the Gaussian sharpen pass. Its presence enables it.
type Sharpen struct {
	Radius *float64 `yaml:"radius"`
	Sigma  *float64 `yaml:"sigma"`
}

// Resize selects the resampling filter.
type Resize struct {
	Filter  string   `yaml:"filter"`
	Support *float64 `yaml:"support"`
}

// Target is one named output size of a destination.
type Target struct {
	Width  float64  `yaml:"width"`
	Height float64  `yaml:"height"`
	Size   *float64 `yaml:"size"` // overrides the destination size
}

// ProfileRef names the output colour profile, either a built-in by name
// or an ICC file.
type ProfileRef struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename"`
}

type JPEG struct {
	Quality *int `yaml:"qual"`
}

type PNG struct {
	Compression string `yaml:"compression"` // default, none, fast, best
}

type TIFF struct {
	Compression string `yaml:"compression"` // none, deflate
}

type WebP struct {
	Quality *int `yaml:"qual"`
}

// Defaults applied when a destination leaves a field unset.
const (
	DefaultFormat  = "jpeg"
	DefaultDepth   = 8
	DefaultQuality = 90
)

var formats = map[string]string{
	"jpeg": "jpeg",
	"jpg":  "jpeg",
	"png":  "png",
	"tiff": "tiff",
	"tif":  "tiff",
	"webp": "webp",
	"avif": "avif",
}

func ptr[T any](v T) *T { return &v }

// Built-in destinations.
var destinations = map[string]Destination{
	"web": {
		Name:    "web",
		Dir:     "web",
		Format:  "jpeg",
		Depth:   ptr(8),
		Intent:  "perceptual",
		Profile: &ProfileRef{Name: "sRGB"},
		Sharpen: &Sharpen{},
		Targets: map[string]Target{
			"landscape": {Width: 1920, Height: 1280},
			"square":    {Width: 1080, Height: 1080},
		},
		JPEG: &JPEG{Quality: ptr(90)},
	},
	"thumbnail": {
		Name:    "thumbnail",
		Dir:     "thumb",
		Format:  "webp",
		Depth:   ptr(8),
		Profile: &ProfileRef{Name: "sRGB"},
		Resize:  &Resize{Filter: "lanczos", Support: ptr(2.0)},
		Targets: map[string]Target{
			"thumb": {Width: 320, Height: 320},
		},
		WebP: &WebP{Quality: ptr(80)},
	},
	"print": {
		Name:    "print",
		Dir:     "print",
		Size:    ptr(12.0),
		Format:  "tiff",
		Depth:   ptr(16),
		Intent:  "relative",
		Profile: &ProfileRef{Name: "AdobeRGB"},
		Sharpen: &Sharpen{Radius: ptr(1.5), Sigma: ptr(10.0)},
		Targets: map[string]Target{
			"12x8": {Width: 3600, Height: 2400},
		},
		TIFF: &TIFF{Compression: "deflate"},
	},
	"archive": {
		Name:     "archive",
		Dir:      "archive",
		Format:   "png",
		Depth:    ptr(16),
		NoResize: true,
		PNG:      &PNG{Compression: "best"},
	},
}

// Get returns a built-in destination by name.
func Get(name string) (Destination, bool) {
	d, ok := destinations[name]
	return d, ok
}

// Names lists the built-in destinations in sorted order.
func Names() []string {
	names := make([]string, 0, len(destinations))
	for n := range destinations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up each name first in loaded, then among the built-ins.
func Resolve(names []string, loaded map[string]Destination) ([]Destination, error) {
	out := make([]Destination, 0, len(names))
	for _, n := range names {
		if d, ok := loaded[n]; ok {
			out = append(out, d)
			continue
		}
		if d, ok := destinations[n]; ok {
			out = append(out, d)
			continue
		}
		return nil, fmt.Errorf("unknown destination %q", n)
	}
	return out, nil
}

// OutputFormat returns the normalised file format name.
func (d Destination) OutputFormat() string {
	if d.Format == "" {
		return DefaultFormat
	}
	if f, ok := formats[strings.ToLower(d.Format)]; ok {
		return f
	}
	return strings.ToLower(d.Format)
}

// BitDepth returns the output bit depth.
func (d Destination) BitDepth() int {
	if d.Depth == nil {
		return DefaultDepth
	}
	return *d.Depth
}

// RenderingIntent parses Intent. Unknown or empty names are perceptual.
func (d Destination) RenderingIntent() cms.Intent {
	intent, _ := cms.ParseIntent(d.Intent)
	return intent
}

// Quality returns the lossy encoder quality for the output format.
func (d Destination) Quality() int {
	switch {
	case d.OutputFormat() == "jpeg" && d.JPEG != nil && d.JPEG.Quality != nil:
		return *d.JPEG.Quality
	case d.OutputFormat() == "webp" && d.WebP != nil && d.WebP.Quality != nil:
		return *d.WebP.Quality
	}
	return DefaultQuality
}

// Compression returns the lossless compression setting for the output format.
func (d Destination) Compression() string {
	switch {
	case d.OutputFormat() == "png" && d.PNG != nil:
		return d.PNG.Compression
	case d.OutputFormat() == "tiff" && d.TIFF != nil:
		return d.TIFF.Compression
	}
	return ""
}

// Filter builds the resampling filter. Without a resize block, or with an
// empty filter name, Lanczos is used.
func (d Destination) Filter() (resample.Filter, error) {
	if d.Resize == nil {
		return resample.NewFilter("", nil)
	}
	name := d.Resize.Filter
	if name == "" && d.Resize.Support != nil {
		name = "lanczos"
	}
	return resample.NewFilter(name, d.Resize.Support)
}

// SharpenKernel builds the sharpen kernel, or returns nil when the
// destination does not sharpen.
func (d Destination) SharpenKernel() (*sharpen.Kernel2D, error) {
	if d.Sharpen == nil {
		return nil, nil
	}
	g, err := sharpen.NewGaussian(d.Sharpen.Radius, d.Sharpen.Sigma)
	if err != nil {
		return nil, err
	}
	return sharpen.NewKernel2D(g), nil
}

// ColourProfile returns the output profile. A nil profile with a nil error
// means the default profile of the output colour model.
func (d Destination) ColourProfile() (*cms.Profile, error) {
	if d.Profile == nil {
		return nil, nil
	}
	if d.Profile.Filename != "" {
		return cms.LoadProfile(d.Profile.Filename)
	}
	if d.Profile.Name == "" {
		return nil, nil
	}
	p, ok := cms.ProfileByName(d.Profile.Name)
	if !ok {
		return nil, &raster.DestinationError{Field: "profile.name", Value: d.Profile.Name}
	}
	return p, nil
}

// RequestedFormat returns the pixel format this destination asks the
// encoder for, given the source format and the output profile (nil for
// none). The encoder may still substitute its preferred format.
func (d Destination) RequestedFormat(src raster.Format, profile *cms.Profile) raster.Format {
	model := raster.ModelRGB
	switch {
	case d.ForceGrey:
		model = raster.ModelGreyscale
	case d.ForceRGB:
		model = raster.ModelRGB
	case profile != nil:
		model = profile.ColourModel()
	case src.ColourModel() == raster.ModelGreyscale:
		model = raster.ModelGreyscale
	}
	f := raster.RGB8().SetColourModel(model).SetExtraChannels(min(src.ExtraChannels(), 1))
	if d.BitDepth() > 8 {
		f = f.Set16bit()
	}
	return f
}

// Frames returns the crop targets in name order. A target without its own
// size inherits the destination size.
func (d Destination) Frames() []frame.Target {
	names := make([]string, 0, len(d.Targets))
	for n := range d.Targets {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]frame.Target, 0, len(names))
	for _, n := range names {
		t := d.Targets[n]
		ft := frame.Target{Name: n, Width: t.Width, Height: t.Height}
		switch {
		case t.Size != nil:
			ft.Size = *t.Size
		case d.Size != nil:
			ft.Size = *d.Size
		}
		out = append(out, ft)
	}
	return out
}

// Validate checks the destination before any image is processed, so a
// misconfigured destination fails without partial output.
func (d Destination) Validate() error {
	if d.Name == "" {
		return &raster.UninitialisedError{Class: "Destination", Field: "name"}
	}
	if _, ok := formats[d.OutputFormat()]; !ok {
		return &raster.DestinationError{Field: "format", Value: d.Format}
	}
	if depth := d.BitDepth(); depth != 8 && depth != 16 {
		return &raster.DestinationError{Field: "depth", Value: fmt.Sprint(depth)}
	}
	if d.ForceRGB && d.ForceGrey {
		return &raster.DestinationError{Field: "forcegrey", Value: "conflicts with forcergb"}
	}
	if q := d.Quality(); q < 1 || q > 100 {
		return &raster.DestinationError{Field: d.OutputFormat() + ".qual", Value: fmt.Sprint(q)}
	}
	if d.Size != nil && !(*d.Size > 0) {
		return &raster.DestinationError{Field: "size", Value: fmt.Sprint(*d.Size)}
	}
	if !d.NoResize {
		if len(d.Targets) == 0 {
			return &raster.UninitialisedError{Class: "Destination", Field: "targets"}
		}
		for n, t := range d.Targets {
			if !(t.Width > 0) || !(t.Height > 0) {
				return &raster.DestinationError{Field: "targets." + n, Value: fmt.Sprintf("%gx%g", t.Width, t.Height)}
			}
		}
		if _, err := d.Filter(); err != nil {
			return err
		}
	}
	if _, err := d.SharpenKernel(); err != nil {
		return err
	}
	p, err := d.ColourProfile()
	if err != nil {
		return err
	}
	if p != nil && d.ForceGrey && p.ColourModel() != raster.ModelGreyscale {
		return &raster.DestinationError{Field: "profile", Value: p.Name() + " is not a greyscale profile"}
	}
	return nil
}
