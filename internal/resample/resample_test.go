package resample

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/AnyUserName/photofinish/internal/raster"
)

func lanczos3(t testing.TB) Filter {
	t.Helper()
	f, err := NewFilter("", nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNewFilter(t *testing.T) {
	two := 2.0
	tests := []struct {
		name    string
		support *float64
		want    string
		radius  float64
		wantErr error
	}{
		{"", nil, "lanczos", 3, nil},
		{"Lanczos", &two, "lanczos", 2, nil},
		{"LANCZOS3", &two, "lanczos", 2, nil},
		{"catmull-rom", nil, "catmullrom", 2, nil},
		{"Mitchell", nil, "mitchell", 2, nil},
		{"lanczos", nil, "", 0, raster.ErrUninitialised},
		{"bicubic-ish", nil, "", 0, nil},
	}
	for _, tt := range tests {
		f, err := NewFilter(tt.name, tt.support)
		if tt.name == "bicubic-ish" {
			var de *raster.DestinationError
			if !errors.As(err, &de) || de.Field != "resize.filter" {
				t.Errorf("NewFilter(%q) error = %v, want DestinationError", tt.name, err)
			}
			continue
		}
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewFilter(%q) error = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewFilter(%q): %v", tt.name, err)
			continue
		}
		if f.Name() != tt.want || f.Radius() != tt.radius {
			t.Errorf("NewFilter(%q) = %s radius %g, want %s radius %g", tt.name, f.Name(), f.Radius(), tt.want, tt.radius)
		}
	}
}

func TestLanczosEval(t *testing.T) {
	l := lanczos3(t)
	if got := l.Eval(0); got != 1 {
		t.Errorf("Eval(0) = %g", got)
	}
	for _, x := range []float64{1, 2, -1, -2} {
		if got := l.Eval(x); math.Abs(got) > 1e-12 {
			t.Errorf("Eval(%g) = %g, want 0", x, got)
		}
	}
	if got := l.Eval(3.5); got != 0 {
		t.Errorf("Eval(3.5) = %g outside the support", got)
	}
	if got, want := l.Eval(0.5), l.Eval(-0.5); got != want {
		t.Errorf("Eval not symmetric: %g vs %g", got, want)
	}
}

func TestKernel1D_NormalisedAndInBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	filters := []Filter{lanczos3(t)}
	if f, err := NewFilter("catmullrom", nil); err == nil {
		filters = append(filters, f)
	}
	for trial := 0; trial < 200; trial++ {
		fromMax := 1 + r.Intn(500)
		fromStart := r.Float64() * float64(fromMax) / 4
		fromSize := 1 + r.Float64()*(float64(fromMax)-fromStart-1)
		if fromSize < 1 {
			fromSize = 1
		}
		toSize := 1 + r.Float64()*400
		f := filters[trial%len(filters)]

		k, err := NewKernel1D(f, fromStart, fromSize, fromMax, toSize)
		if err != nil {
			t.Fatal(err)
		}
		if k.Len() != int(math.Ceil(toSize)) {
			t.Fatalf("Len = %d for toSize %g", k.Len(), toSize)
		}
		for i := 0; i < k.Len(); i++ {
			start, size := k.Start(i), k.Size(i)
			if start < 0 || start+size-1 > fromMax-1 {
				t.Fatalf("trial %d sample %d: window [%d, %d) outside [0, %d)", trial, i, start, start+size, fromMax)
			}
			sum := 0.0
			for _, w := range k.Weights(i) {
				sum += w
			}
			if math.Abs(sum-1) > 1e-4 && math.Abs(sum) > 1e-5 {
				t.Fatalf("trial %d sample %d: weights sum to %g", trial, i, sum)
			}
		}
	}
}

// Downscaling stretches the filter by the scale factor and evaluates it at
// radius/ceil(radius·scale) times the source distance.
func TestKernel1D_DownscaleWidensFilter(t *testing.T) {
	tests := []struct {
		from, to float64
		i        int
		taps     int
		norm     float64
	}{
		{100, 50, 20, 13, 0.5},
		{100, 40, 20, 17, 3.0 / 8},
		{50, 100, 40, 7, 1},
	}
	f := lanczos3(t)
	for _, tt := range tests {
		k, err := NewKernel1D(f, 0, tt.from, int(tt.from), tt.to)
		if err != nil {
			t.Fatal(err)
		}
		w := k.Weights(tt.i)
		if len(w) != tt.taps {
			t.Fatalf("%g->%g: window %d has %d taps, want %d", tt.from, tt.to, tt.i, len(w), tt.taps)
		}
		centre := float64(tt.i) * tt.from / tt.to
		raw := make([]float64, len(w))
		sum := 0.0
		for j := range raw {
			raw[j] = f.Eval((centre - float64(k.Start(tt.i)+j)) * tt.norm)
			sum += raw[j]
		}
		for j := range w {
			if want := raw[j] / sum; math.Abs(w[j]-want) > 1e-12 {
				t.Errorf("%g->%g: weight %d = %g, want %g", tt.from, tt.to, j, w[j], want)
			}
		}
	}
}

func TestNewKernel1D_Invalid(t *testing.T) {
	if _, err := NewKernel1D(lanczos3(t), 0, 10, 10, 0); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("zero output: got %v", err)
	}
	if _, err := NewKernel1D(nil, 0, 10, 10, 5); !errors.Is(err, raster.ErrUninitialised) {
		t.Errorf("nil filter: got %v", err)
	}
}

func newFilled(t testing.TB, w, h int, f raster.Format, fill func(x, y, c int) float64) *raster.Image {
	t.Helper()
	img, err := raster.NewImage(w, h, f)
	if err != nil {
		t.Fatal(err)
	}
	img.AllocateAll()
	ch := f.TotalChannels()
	for y := 0; y < h; y++ {
		row := img.MustRow(y)
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				raster.WriteSample(row, f.SampleType(), x*ch+c, fill(x, y, c))
			}
		}
	}
	return img
}

func resize(t testing.TB, img *raster.Image, w, h int, opts Options) *raster.Image {
	t.Helper()
	f := lanczos3(t)
	kh, err := NewKernel1D(f, 0, float64(img.Width()), img.Width(), float64(w))
	if err != nil {
		t.Fatal(err)
	}
	kv, err := NewKernel1D(f, 0, float64(img.Height()), img.Height(), float64(h))
	if err != nil {
		t.Fatal(err)
	}
	tmp, err := kh.ConvolveH(context.Background(), img, opts)
	if err != nil {
		t.Fatal(err)
	}
	out, err := kv.ConvolveV(context.Background(), tmp, opts)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestConvolve_IdentityAcrossFormats(t *testing.T) {
	formats := []raster.Format{
		raster.Grey8(),
		raster.RGB16(),
		raster.RGBA8(),
		raster.LabDouble(),
		raster.RGB8().SetColourModel(raster.ModelMCH5).SetExtraChannels(2),
		raster.CMYK8().Set32bit(),
		raster.RGB8().SetFloat(),
	}
	r := rand.New(rand.NewSource(3))
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			maxv := f.MaxScaleValue()
			img := newFilled(t, 9, 7, f, func(x, y, c int) float64 {
				v := r.Float64() * maxv
				if f.IsInteger() {
					v = math.Floor(v)
				}
				return v
			})
			out := resize(t, img.Clone(), 9, 7, Options{})
			ch := f.TotalChannels()
			for y := 0; y < 7; y++ {
				a, b := img.MustRow(y), out.MustRow(y)
				for i := 0; i < 9*ch; i++ {
					va := raster.ReadSample(a, f.SampleType(), i)
					vb := raster.ReadSample(b, f.SampleType(), i)
					tol := 1.0
					if f.IsFP() {
						tol = 1e-9 * math.Max(1, math.Abs(va))
					}
					if math.Abs(va-vb) > tol {
						t.Fatalf("row %d sample %d: %g -> %g", y, i, va, vb)
					}
				}
			}
		})
	}
}

// quadrants builds a 4x4 RGB8 image of red, green, blue and white 2x2 blocks.
func quadrants(t testing.TB) *raster.Image {
	colours := [4][3]float64{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {255, 255, 255}}
	return newFilled(t, 4, 4, raster.RGB8(), func(x, y, c int) float64 {
		return colours[(y/2)*2+x/2][c]
	})
}

func TestConvolve_QuadrantDecimation(t *testing.T) {
	out := resize(t, quadrants(t), 2, 2, Options{})
	px := func(x, y int) [3]int {
		r := out.MustRow(y)[x*3:]
		return [3]int{int(r[0]), int(r[1]), int(r[2])}
	}
	dominant := func(p [3]int, c int) bool {
		for i := range p {
			if i != c && p[i]+50 > p[c] {
				return false
			}
		}
		return true
	}
	if p := px(0, 0); !dominant(p, 0) {
		t.Errorf("red quadrant became %v", p)
	}
	if p := px(1, 0); !dominant(p, 1) {
		t.Errorf("green quadrant became %v", p)
	}
	if p := px(0, 1); !dominant(p, 2) {
		t.Errorf("blue quadrant became %v", p)
	}
	if p := px(1, 1); p[0] < 128 || p[1] < 128 || p[2] < 128 {
		t.Errorf("white quadrant became %v", p)
	}
}

func TestConvolve_RepeatedIdentityIsStable(t *testing.T) {
	img := quadrants(t)
	once := resize(t, img.Clone(), 4, 4, Options{})
	twice := resize(t, once.Clone(), 4, 4, Options{})
	for y := 0; y < 4; y++ {
		if string(once.MustRow(y)) != string(twice.MustRow(y)) {
			t.Fatalf("row %d changed on second pass", y)
		}
		if string(once.MustRow(y)) != string(img.MustRow(y)) {
			t.Fatalf("row %d changed on first pass", y)
		}
	}
}

func TestConvolve_ResolutionScaled(t *testing.T) {
	img := newFilled(t, 8, 8, raster.Grey8(), func(x, y, c int) float64 { return 100 })
	img.SetXResolution(300)
	out := resize(t, img, 4, 2, Options{})
	if x, ok := out.XResolution(); !ok || x != 150 {
		t.Errorf("x resolution = %g %v, want 150", x, ok)
	}
	if _, ok := out.YResolution(); ok {
		t.Error("undefined y resolution became defined")
	}
}

func TestConvolve_CanFree(t *testing.T) {
	img := newFilled(t, 6, 12, raster.RGB8(), func(x, y, c int) float64 { return float64(x*10 + y) })
	f := lanczos3(t)
	kh, err := NewKernel1D(f, 0, 6, 6, 3)
	if err != nil {
		t.Fatal(err)
	}
	tmp, err := kh.ConvolveH(context.Background(), img, Options{CanFree: true})
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 12; y++ {
		if img.IsRowAllocated(y) {
			t.Fatalf("horizontal pass left source row %d allocated", y)
		}
	}

	// A crop of rows 2..7 never needs rows past the window of the last output.
	kv, err := NewKernel1D(f, 2, 4, 12, 4)
	if err != nil {
		t.Fatal(err)
	}
	out, err := kv.ConvolveV(context.Background(), tmp, Options{CanFree: true, Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	if out.Height() != 4 || out.Width() != 3 {
		t.Fatalf("output %dx%d", out.Width(), out.Height())
	}
	for y := 0; y < 12; y++ {
		if tmp.IsRowAllocated(y) {
			t.Errorf("vertical pass left row %d allocated", y)
		}
	}
}

func TestConvolve_Errors(t *testing.T) {
	f := lanczos3(t)
	k, err := NewKernel1D(f, 0, 4, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	planar, err := raster.NewImage(4, 4, raster.RGB8().SetPlanar(true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.ConvolveH(context.Background(), planar, Options{}); !errors.Is(err, raster.ErrTypeMismatch) {
		t.Errorf("planar: got %v", err)
	}
	empty, err := raster.NewImage(4, 4, raster.RGB8())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.ConvolveV(context.Background(), empty, Options{}); !errors.Is(err, raster.ErrRowNotAllocated) {
		t.Errorf("unallocated rows: got %v", err)
	}
	narrow, err := raster.NewImage(3, 3, raster.RGB8())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.ConvolveH(context.Background(), narrow, Options{}); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("narrow image: got %v", err)
	}
}

func BenchmarkConvolveH_RGB16(b *testing.B) {
	img := newFilled(b, 2000, 64, raster.RGB16(), func(x, y, c int) float64 { return float64((x * y * (c + 1)) % 65536) })
	k, err := NewKernel1D(lanczos3(b), 0, 2000, 2000, 640)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := k.ConvolveH(context.Background(), img, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvolveV_LabDouble(b *testing.B) {
	img := newFilled(b, 640, 2000, raster.LabDouble(), func(x, y, c int) float64 { return float64(x+y) / 26 })
	k, err := NewKernel1D(lanczos3(b), 0, 2000, 2000, 480)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := k.ConvolveV(context.Background(), img, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
