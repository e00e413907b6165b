package frame

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/AnyUserName/photofinish/internal/raster"
	"github.com/AnyUserName/photofinish/internal/resample"
)

func TestCentreSolver(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		target Target
		want   Frame
	}{
		{
			name:   "landscape to square",
			w:      400,
			h:      200,
			target: Target{Name: "sq", Width: 100, Height: 100},
			want:   Frame{Target: "sq", CropX: 100, CropY: 0, CropW: 200, CropH: 200, Width: 100, Height: 100},
		},
		{
			name:   "portrait to landscape with size",
			w:      300,
			h:      600,
			target: Target{Name: "wide", Width: 600, Height: 300, Size: 2},
			want:   Frame{Target: "wide", CropX: 0, CropY: 225, CropW: 300, CropH: 150, Width: 600, Height: 300, Resolution: 300},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CentreSolver{}.Solve(tt.w, tt.h, tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
	if _, err := (CentreSolver{}).Solve(10, 10, Target{Name: "bad"}); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("zero target: got %v", err)
	}
}

func TestHorizontalFirst(t *testing.T) {
	// Shrinking width a lot, height a little: do the horizontal pass first.
	f := Frame{Width: 100, Height: 900}
	if !f.HorizontalFirst(1000, 1000) {
		t.Error("expected horizontal first")
	}
	f = Frame{Width: 900, Height: 100}
	if f.HorizontalFirst(1000, 1000) {
		t.Error("expected vertical first")
	}
}

func gradient(t *testing.T, w, h int) *raster.Image {
	t.Helper()
	img, err := raster.NewImage(w, h, raster.LabDouble())
	if err != nil {
		t.Fatal(err)
	}
	img.AllocateAll()
	for y := 0; y < h; y++ {
		s := raster.RowSamples[float64](img.MustRow(y))
		for x := 0; x < w; x++ {
			s[3*x] = float64(x*3+y) / float64(w+h) * 100
			s[3*x+1] = math.Sin(float64(x)) * 20
			s[3*x+2] = math.Cos(float64(y)) * 20
		}
	}
	return img
}

func TestResize_OrderDoesNotChangeResult(t *testing.T) {
	filter, err := resample.NewFilter("", nil)
	if err != nil {
		t.Fatal(err)
	}
	fr := Frame{Target: "t", CropX: 3, CropY: 5, CropW: 30, CropH: 20, Width: 12, Height: 9}
	src := gradient(t, 40, 30)

	got, err := fr.Resize(context.Background(), src.Clone(), filter, resample.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Width() != 12 || got.Height() != 9 {
		t.Fatalf("output %dx%d", got.Width(), got.Height())
	}

	// Run the passes in the other order by hand.
	kh, _ := resample.NewKernel1D(filter, fr.CropX, fr.CropW, 40, fr.Width)
	kv, _ := resample.NewKernel1D(filter, fr.CropY, fr.CropH, 30, fr.Height)
	var want *raster.Image
	if fr.HorizontalFirst(40, 30) {
		tmp, err := kv.ConvolveV(context.Background(), src, resample.Options{})
		if err != nil {
			t.Fatal(err)
		}
		want, err = kh.ConvolveH(context.Background(), tmp, resample.Options{})
		if err != nil {
			t.Fatal(err)
		}
	} else {
		tmp, err := kh.ConvolveH(context.Background(), src, resample.Options{})
		if err != nil {
			t.Fatal(err)
		}
		want, err = kv.ConvolveV(context.Background(), tmp, resample.Options{})
		if err != nil {
			t.Fatal(err)
		}
	}
	for y := 0; y < 9; y++ {
		a := raster.RowSamples[float64](got.MustRow(y))
		b := raster.RowSamples[float64](want.MustRow(y))
		for i := range a {
			if math.Abs(a[i]-b[i]) > 1e-9 {
				t.Fatalf("row %d sample %d: %g vs %g", y, i, a[i], b[i])
			}
		}
	}
}

func TestResize_FreesAndSetsResolution(t *testing.T) {
	filter, err := resample.NewFilter("lanczos", ptr(2))
	if err != nil {
		t.Fatal(err)
	}
	src := gradient(t, 20, 16)
	fr := Frame{Target: "t", CropW: 20, CropH: 16, Width: 10, Height: 8, Resolution: 72}
	out, err := fr.Resize(context.Background(), src, filter, resample.Options{CanFree: true})
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 16; y++ {
		if src.IsRowAllocated(y) {
			t.Fatalf("source row %d still allocated", y)
		}
	}
	if x, ok := out.XResolution(); !ok || x != 72 {
		t.Errorf("x resolution %g %v", x, ok)
	}
	if y, ok := out.YResolution(); !ok || y != 72 {
		t.Errorf("y resolution %g %v", y, ok)
	}
}

func TestResize_RejectsBadFrame(t *testing.T) {
	filter, err := resample.NewFilter("", nil)
	if err != nil {
		t.Fatal(err)
	}
	src := gradient(t, 10, 10)
	for _, fr := range []Frame{
		{CropW: 10, CropH: 10},
		{CropX: 5, CropW: 10, CropH: 10, Width: 5, Height: 5},
		{CropW: 0, CropH: 10, Width: 5, Height: 5},
	} {
		if _, err := fr.Resize(context.Background(), src, filter, resample.Options{}); !errors.Is(err, raster.ErrPrecondition) {
			t.Errorf("%v: got %v", fr, err)
		}
	}
}

func ptr(v float64) *float64 { return &v }
