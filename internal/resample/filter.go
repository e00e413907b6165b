package resample

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Filter is a one-dimensional resampling basis function centred on zero.
type Filter interface {
	Name() string
	// Radius is the half-width of the filter's support at scale 1.
	Radius() float64
	Eval(x float64) float64
}

// DefaultLanczosSupport is used when a destination names no filter.
const DefaultLanczosSupport = 3.0

// Lanczos is the windowed sinc filter with a configurable support radius.
type Lanczos struct {
	radius float64
}

// NewLanczos returns a Lanczos filter. A nil support is an
// Uninitialised error.
func NewLanczos(support *float64) (Lanczos, error) {
	if support == nil {
		return Lanczos{}, &raster.UninitialisedError{Class: "Lanczos", Field: "resize.support"}
	}
	if !(*support > 0) {
		return Lanczos{}, &raster.DestinationError{Field: "resize.support", Value: strconv.FormatFloat(*support, 'g', -1, 64)}
	}
	return Lanczos{radius: *support}, nil
}

func (l Lanczos) Name() string    { return "lanczos" }
func (l Lanczos) Radius() float64 { return l.radius }

// Eval returns radius·sin(πx)·sin(πx/radius) / (π²x²) inside the support
// and 0 outside it.
func (l Lanczos) Eval(x float64) float64 {
	ax := math.Abs(x)
	if ax < 1e-6 {
		return 1
	}
	if ax >= l.radius {
		return 0
	}
	pix := math.Pi * x
	return l.radius * math.Sin(pix) * math.Sin(pix/l.radius) / (math.Pi * math.Pi * x * x)
}

// kernelFilter adapts one of the imaging package's fixed-support filters.
type kernelFilter struct {
	name string
	f    imaging.ResampleFilter
}

func (k kernelFilter) Name() string           { return k.name }
func (k kernelFilter) Radius() float64        { return k.f.Support }
func (k kernelFilter) Eval(x float64) float64 { return k.f.Kernel(x) }

var namedFilters = map[string]imaging.ResampleFilter{
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"hermite":    imaging.Hermite,
	"mitchell":   imaging.MitchellNetravali,
	"catmullrom": imaging.CatmullRom,
	"bspline":    imaging.BSpline,
	"gaussian":   imaging.Gaussian,
	"bartlett":   imaging.Bartlett,
	"hann":       imaging.Hann,
	"hamming":    imaging.Hamming,
	"blackman":   imaging.Blackman,
	"welch":      imaging.Welch,
	"cosine":     imaging.Cosine,
}

// NewFilter selects a filter by destination name. An empty name selects
// Lanczos with DefaultLanczosSupport. Any name starting with "lanczos"
// (case-insensitive) selects Lanczos with the given support; the remaining
// fixed-support filters ignore support. Unknown names are a
// DestinationError on "resize.filter".
func NewFilter(name string, support *float64) (Filter, error) {
	lower := strings.ToLower(name)
	if name == "" || strings.HasPrefix(lower, "lanczos") {
		if name == "" {
			s := DefaultLanczosSupport
			support = &s
		}
		l, err := NewLanczos(support)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(lower)
	if f, ok := namedFilters[key]; ok {
		return kernelFilter{name: key, f: f}, nil
	}
	return nil, &raster.DestinationError{Field: "resize.filter", Value: name}
}

// FilterNames lists the accepted filter names.
func FilterNames() []string {
	names := []string{"lanczos"}
	for n := range namedFilters {
		names = append(names, n)
	}
	sort.Strings(names[1:])
	return names
}
