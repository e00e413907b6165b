package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AnyUserName/photofinish/internal/codec"
	"github.com/AnyUserName/photofinish/internal/destination"
	"github.com/AnyUserName/photofinish/internal/hasher"
	"github.com/AnyUserName/photofinish/internal/raster"
)

func writeFixtures(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "trip"), 0o755); err != nil {
		t.Fatal(err)
	}
	rgba := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			rgba.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "trip", "beach.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, rgba); err != nil {
		t.Fatal(err)
	}
	f.Close()

	grey := image.NewGray(image.Rect(0, 0, 30, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 30; x++ {
			grey.SetGray(x, y, color.Gray{Y: uint8((x + y) * 3)})
		}
	}
	f, err = os.Create(filepath.Join(dir, "portrait.JPG"))
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, grey, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// Not an image; must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func ptr[T any](v T) *T { return &v }

func testDestinations() []destination.Destination {
	return []destination.Destination{
		{
			Name:    "web",
			Format:  "jpeg",
			Sharpen: &destination.Sharpen{},
			Targets: map[string]destination.Target{
				"square": {Width: 32, Height: 32},
				"wide":   {Width: 40, Height: 20},
			},
		},
		{
			Name:     "archive",
			Dir:      "keep",
			Format:   "png",
			Depth:    ptr(16),
			NoResize: true,
			Size:     ptr(2.0),
		},
		{
			Name:    "proof",
			Format:  "tiff",
			Targets: map[string]destination.Target{"a": {Width: 10, Height: 10}},
		},
	}
}

// brokenTIFF fails every encode, like a full disk would.
type brokenTIFF struct{ codec.TIFFEncoder }

func (*brokenTIFF) Encode(image.Image, codec.Options) ([]byte, error) {
	return nil, errors.New("no space left on device")
}

func TestRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFixtures(t, in)

	p := New(Config{InputDir: in, OutputDir: out, Destinations: testDestinations(), Workers: 2})
	p.WithRegistry(codec.NewRegistryOf(&codec.JPEGEncoder{}, &codec.PNGEncoder{}, &brokenTIFF{}))
	m, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(m.Sources) != 2 {
		t.Fatalf("sources: got %d", len(m.Sources))
	}
	beach, ok := m.Sources["trip/beach"]
	if !ok {
		t.Fatal("trip/beach missing")
	}
	if beach.Original.Width != 64 || beach.Original.Height != 48 || beach.Original.ColourModel != "RGB" {
		t.Errorf("original: %+v", beach.Original)
	}
	portrait, ok := m.Sources["portrait"]
	if !ok {
		t.Fatal("portrait missing")
	}
	if portrait.Original.ColourModel != "Greyscale" || portrait.Original.Format != "jpeg" {
		t.Errorf("original: %+v", portrait.Original)
	}

	for key, s := range m.Sources {
		// web square, web wide, archive full; proof fails.
		if len(s.Outputs) != 3 {
			t.Errorf("%s: %d outputs", key, len(s.Outputs))
		}
		if len(s.Errors) != 1 || !strings.HasPrefix(s.Errors[0], "proof: ") {
			t.Errorf("%s: errors %v", key, s.Errors)
		}
		for _, o := range s.Outputs {
			checkOutput(t, out, o.Path, o.Hash, o.Width, o.Height)
		}
	}

	byTarget := map[string]int{}
	for _, o := range beach.Outputs {
		byTarget[o.Destination+"/"+o.Target] = o.Width*1000 + o.Height
		switch o.Destination {
		case "web":
			if o.Depth != 8 || o.ColourModel != "RGB" || o.Profile != "sRGB" {
				t.Errorf("web output: %+v", o)
			}
		case "archive":
			if o.Depth != 16 || o.Resolution != 32 || !strings.HasPrefix(o.Path, "keep/trip/beach.full.") {
				t.Errorf("archive output: %+v", o)
			}
		}
	}
	want := map[string]int{"web/square": 32032, "web/wide": 40020, "archive/full": 64048}
	for k, v := range want {
		if byTarget[k] != v {
			t.Errorf("%s: got %d, want %d", k, byTarget[k], v)
		}
	}

	for _, o := range portrait.Outputs {
		if o.ColourModel != "Greyscale" {
			t.Errorf("grey source produced %s output %s/%s", o.ColourModel, o.Destination, o.Target)
		}
	}

	if m.Stats.TotalSources != 2 || m.Stats.TotalOutputs != 6 || m.Stats.Failed != 2 {
		t.Errorf("stats: %+v", m.Stats)
	}
}

func checkOutput(t *testing.T, outDir, rel, hash string, w, h int) {
	t.Helper()
	path := filepath.Join(outDir, filepath.FromSlash(rel))
	f, err := os.Open(path)
	if err != nil {
		t.Errorf("output %s: %v", rel, err)
		return
	}
	got, err := hasher.ContentHashReader(f, 16)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if got != hash {
		t.Errorf("%s: hash %s, manifest says %s", rel, got, hash)
	}
	img, err := codec.Decode(path)
	if err != nil {
		t.Errorf("decode %s: %v", rel, err)
		return
	}
	if img.Width() != w || img.Height() != h {
		t.Errorf("%s: %dx%d, manifest says %dx%d", rel, img.Width(), img.Height(), w, h)
	}
}

func TestRun_InvalidDestinationFailsFirst(t *testing.T) {
	in := t.TempDir()
	writeFixtures(t, in)
	out := t.TempDir()
	p := New(Config{
		InputDir:  in,
		OutputDir: out,
		Destinations: []destination.Destination{{
			Name:    "bad",
			Targets: map[string]destination.Target{"a": {Width: 10, Height: 10}},
			Sharpen: &destination.Sharpen{Radius: ptr(-1.0)},
		}},
	})
	if _, err := p.Run(context.Background()); !errors.Is(err, raster.ErrUninitialised) {
		t.Fatalf("got %v", err)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output written before validation: %v", entries)
	}
}

func TestRun_UnwritableProfileFailsFirst(t *testing.T) {
	tests := []struct {
		name string
		dest destination.Destination
	}{
		{"cmyk", destination.Destination{Name: "proof", Format: "jpeg", Profile: &destination.ProfileRef{Name: "cmyk"}}},
		{"lab", destination.Destination{Name: "lab", Format: "tiff", Profile: &destination.ProfileRef{Name: "lab"}}},
		{"forced rgb", destination.Destination{Name: "mixed", Format: "png", ForceRGB: true, Profile: &destination.ProfileRef{Name: "grey"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := t.TempDir(), t.TempDir()
			writeFixtures(t, in)
			d := tt.dest
			d.Targets = map[string]destination.Target{"a": {Width: 10, Height: 10}}
			p := New(Config{InputDir: in, OutputDir: out, Destinations: []destination.Destination{d}})
			if _, err := p.Run(context.Background()); !errors.Is(err, raster.ErrTypeMismatch) {
				t.Fatalf("got %v", err)
			}
			entries, err := os.ReadDir(out)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("output written before validation: %v", entries)
			}
		})
	}
}

// greyICC is a minimal grey ICC profile with an identity kTRC.
func greyICC() []byte {
	be := binary.BigEndian
	header := make([]byte, 128)
	header[8] = 2
	copy(header[12:], "mntr")
	copy(header[16:], "GRAY")
	copy(header[20:], "XYZ ")
	copy(header[36:], "acsp")
	out := be.AppendUint32(header, 1)
	out = append(out, "kTRC"...)
	out = be.AppendUint32(out, 128+4+12)
	out = be.AppendUint32(out, 12)
	out = append(out, "curv\x00\x00\x00\x00\x00\x00\x00\x00"...)
	be.PutUint32(out[0:], uint32(len(out)))
	return out
}

func TestPrepare_ProfileLoadedOnce(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFixtures(t, in)
	iccPath := filepath.Join(t.TempDir(), "grey.icc")
	if err := os.WriteFile(iccPath, greyICC(), 0o644); err != nil {
		t.Fatal(err)
	}
	d := destination.Destination{
		Name:      "print",
		Format:    "png",
		NoResize:  true,
		ForceGrey: true,
		Profile:   &destination.ProfileRef{Filename: iccPath},
	}
	p := New(Config{InputDir: in, OutputDir: out, Destinations: []destination.Destination{d}})
	pl, err := p.prepare(d)
	if err != nil {
		t.Fatal(err)
	}
	if pl.profile == nil || pl.profile.Name() != "ICC Grey" {
		t.Fatalf("profile %v", pl.profile)
	}
	// Every source must use the profile read during preparation.
	if err := os.Remove(iccPath); err != nil {
		t.Fatal(err)
	}

	sources, err := ScanImages(in, out)
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range sources {
		r := p.processSource(context.Background(), src, []plan{pl})
		if r.err != nil || len(r.source.Errors) != 0 {
			t.Fatalf("%s: %v %v", src.Key, r.err, r.source.Errors)
		}
		if len(r.source.Outputs) != 1 || r.source.Outputs[0].Profile != "ICC Grey" {
			t.Errorf("%s: outputs %+v", src.Key, r.source.Outputs)
		}
	}
}

func TestRun_GreyProfileDropsAlpha(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	f, err := os.Create(filepath.Join(in, "glass.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	p := New(Config{InputDir: in, OutputDir: out, Destinations: []destination.Destination{{
		Name:     "grey",
		Format:   "png",
		NoResize: true,
		Profile:  &destination.ProfileRef{Name: "grey"},
	}}})
	m, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := m.Sources["glass"]
	if !s.Original.HasAlpha || len(s.Errors) != 0 || len(s.Outputs) != 1 {
		t.Fatalf("source %+v", s)
	}
	if o := s.Outputs[0]; o.ColourModel != "Greyscale" || o.Profile != "Grey" {
		t.Errorf("output %+v", o)
	}
}

func TestRun_MissingEncoder(t *testing.T) {
	in := t.TempDir()
	writeFixtures(t, in)
	p := New(Config{InputDir: in, OutputDir: t.TempDir(), Destinations: testDestinations()[:1]})
	p.WithRegistry(codec.NewRegistryOf(&codec.PNGEncoder{}))
	if _, err := p.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "no jpeg encoder") {
		t.Fatalf("got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	in := t.TempDir()
	writeFixtures(t, in)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Config{InputDir: in, OutputDir: t.TempDir(), Destinations: testDestinations()[:1]})
	p.WithRegistry(codec.NewRegistryOf(&codec.JPEGEncoder{}))
	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestScanImages(t *testing.T) {
	in := t.TempDir()
	writeFixtures(t, in)
	outDir := filepath.Join(in, "out")
	for _, d := range []string{outDir, filepath.Join(in, ".cache")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "x.png"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sources, err := ScanImages(in, outDir)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, s := range sources {
		got[s.Key] = s.Format
	}
	want := map[string]string{"trip/beach": "png", "portrait": "jpeg"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: format %q, want %q", k, got[k], v)
		}
	}
}
