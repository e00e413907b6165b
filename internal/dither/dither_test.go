package dither

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
)

func randomRows(seed int64, rows, n int) [][]uint16 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]uint16, rows)
	for y := range out {
		out[y] = make([]uint16, n)
		for i := range out[y] {
			out[y][i] = uint16(r.Intn(65536))
		}
	}
	return out
}

func TestDitherRow_Deterministic(t *testing.T) {
	const width, channels, rows = 1500, 3, 6 // wide enough for the per-channel goroutines
	in := randomRows(1, rows, width*channels)
	run := func() [][]uint8 {
		d, err := New(width, channels)
		if err != nil {
			t.Fatal(err)
		}
		out := make([][]uint8, rows)
		for y := range in {
			out[y] = make([]uint8, width*channels)
			if err := d.DitherRow(in[y], out[y], y == rows-1); err != nil {
				t.Fatal(err)
			}
		}
		return out
	}
	a, b := run(), run()
	for y := range a {
		if string(a[y]) != string(b[y]) {
			t.Fatalf("row %d differs between runs", y)
		}
	}
}

// Every pixel's residual must land in the forward or downward taps, except
// taps that fall outside the row.
func TestDitherRow_ConservesError(t *testing.T) {
	const width = 16
	in := randomRows(2, 1, width)[0]
	d, err := New(width, 1)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]uint8, width)
	if err := d.DitherRow(in, out, false); err != nil {
		t.Fatal(err)
	}

	e := make([]int32, width)
	var fwd int32
	for x := 0; x < width; x++ {
		target := int32(in[x]) + fwd>>4
		e[x] = target - int32(out[x])*257
		fwd = 7 * e[x]
	}
	for x := 0; x < width; x++ {
		want := 5 * e[x]
		if x > 0 {
			want += e[x-1]
		}
		if x < width-1 {
			want += 3 * e[x+1]
		}
		if d.next[x] != want {
			t.Errorf("next[%d] = %d, want %d", x, d.next[x], want)
		}
	}
}

func TestDitherRow_LastRowKeepsNothingForBelow(t *testing.T) {
	d, err := New(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.DitherRow([]uint16{100, 30000, 200, 65000}, make([]uint8, 4), true); err != nil {
		t.Fatal(err)
	}
	for x, v := range d.next {
		if v != 0 {
			t.Errorf("next[%d] = %d after last row", x, v)
		}
	}
}

func TestDitherRow_ConstantMean(t *testing.T) {
	const width, rows, v = 1000, 4, 32768
	d, err := New(width, 1)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]uint16, width)
	for i := range in {
		in[i] = v
	}
	out := make([]uint8, width)
	for y := 0; y < rows; y++ {
		if err := d.DitherRow(in, out, y == rows-1); err != nil {
			t.Fatal(err)
		}
		sum := 0.0
		for _, o := range out {
			sum += float64(o)
		}
		mean := sum / width * 65535 / 255
		if math.Abs(mean-v) > 257 {
			t.Errorf("row %d mean %.1f, want within one step of %d", y, mean, v)
		}
	}
}

func TestDitherRow_SmallerMax(t *testing.T) {
	d, err := New(2, 2, 255, 15)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]uint8, 4)
	if err := d.DitherRow([]uint16{65535, 65535, 0, 65535}, out, true); err != nil {
		t.Fatal(err)
	}
	if out[0] != 255 || out[1] != 15 || out[2] != 0 || out[3] != 15 {
		t.Fatalf("out = %v", out)
	}
}

func TestDitherRow_Preconditions(t *testing.T) {
	d, err := New(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.DitherRow(make([]uint16, 2), make([]uint8, 3), false); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("short row: got %v", err)
	}
	if err := d.DitherRow(make([]uint16, 3), make([]uint8, 3), true); err != nil {
		t.Fatal(err)
	}
	if err := d.DitherRow(make([]uint16, 3), make([]uint8, 3), false); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("row after last: got %v", err)
	}
	if _, err := New(3, 1, 256); !errors.Is(err, raster.ErrPrecondition) {
		t.Errorf("max 256: got %v", err)
	}
	if _, err := New(3, 16); !errors.Is(err, raster.ErrTypeMismatch) {
		t.Errorf("16 channels: got %v", err)
	}
}

func TestDitherImage(t *testing.T) {
	img, err := raster.NewImage(3, 2, raster.RGB16())
	if err != nil {
		t.Fatal(err)
	}
	img.AllocateAll()
	for y := 0; y < 2; y++ {
		s := raster.RowSamples[uint16](img.MustRow(y))
		for i := range s {
			s[i] = uint16(i * 257 * 10)
		}
	}
	img.SetResolution(300)

	out, err := DitherImage(img, true, perf.Tracer{})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Format().Is8bit() || out.Format().Channels() != 3 {
		t.Fatalf("format %s", out.Format())
	}
	if xres, ok := out.XResolution(); !ok || xres != 300 {
		t.Errorf("resolution %v %v", xres, ok)
	}
	for y := 0; y < 2; y++ {
		if img.IsRowAllocated(y) {
			t.Errorf("source row %d not freed", y)
		}
		for i, v := range out.MustRow(y) {
			if int(v) != i*10 {
				t.Fatalf("row %d sample %d = %d, want %d", y, i, v, i*10)
			}
		}
	}
}

func TestDitherImage_RejectsNon16bit(t *testing.T) {
	img, err := raster.NewImage(1, 1, raster.RGB8())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DitherImage(img, false, perf.Tracer{}); !errors.Is(err, raster.ErrTypeMismatch) {
		t.Fatalf("got %v", err)
	}
}
