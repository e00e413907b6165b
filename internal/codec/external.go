package codec

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/photofinish/internal/raster"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// external runs a command-line encoder that reads a PNG file and writes
// its output to another file.
type external struct {
	tool string

	once sync.Once
	path string
}

func (x *external) available() bool {
	x.once.Do(func() {
		if p, err := exec.LookPath(x.tool); err == nil {
			x.path = p
		}
	})
	return x.path != ""
}

// run writes img to a temporary PNG, invokes the tool with args built
// from the source and destination paths, and returns the output bytes.
func (x *external) run(img image.Image, ext string, args func(src, dst string) []string) ([]byte, error) {
	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("photofinish_src_%d_*.png", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	dstFile, err := os.CreateTemp("", fmt.Sprintf("photofinish_dst_%d_*.%s", id, ext))
	if err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp png: %w", err)
	}

	cmd := exec.Command(x.path, args(srcPath, dstPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", x.tool, err, string(out))
	}
	return os.ReadFile(dstPath)
}

// WebPEncoder encodes images to WebP by shelling out to cwebp.
// Install: brew install webp / apt install webp
type WebPEncoder struct {
	x external
}

func NewWebPEncoder() *WebPEncoder { return &WebPEncoder{x: external{tool: "cwebp"}} }

func (e *WebPEncoder) Format() string    { return "webp" }
func (e *WebPEncoder) Extension() string { return "webp" }
func (e *WebPEncoder) Available() bool   { return e.x.available() }

func (e *WebPEncoder) PreferredFormat(requested raster.Format) raster.Format {
	return packed8(requested, true)
}

func (e *WebPEncoder) Encode(img image.Image, opts Options) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("cwebp not found in PATH; install with: brew install webp")
	}
	q := strconv.Itoa(opts.quality())
	return e.x.run(img, "webp", func(src, dst string) []string {
		return []string{
			"-q", q,
			"-m", "6", // compression method (0=fast, 6=best)
			"-mt",
			"-quiet",
			src,
			"-o", dst,
		}
	})
}

// AVIFEncoder encodes images to AVIF by shelling out to avifenc.
// Install: brew install libavif / apt install libavif-bin
type AVIFEncoder struct {
	x external
}

func NewAVIFEncoder() *AVIFEncoder { return &AVIFEncoder{x: external{tool: "avifenc"}} }

func (e *AVIFEncoder) Format() string    { return "avif" }
func (e *AVIFEncoder) Extension() string { return "avif" }
func (e *AVIFEncoder) Available() bool   { return e.x.available() }

func (e *AVIFEncoder) PreferredFormat(requested raster.Format) raster.Format {
	return packed8(requested, true)
}

func (e *AVIFEncoder) Encode(img image.Image, opts Options) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("avifenc not found in PATH; install with: brew install libavif")
	}
	// avifenc uses a different quality scale: lower = better, 0-63.
	q := strconv.Itoa(63 - opts.quality()*63/100)
	return e.x.run(img, "avif", func(src, dst string) []string {
		return []string{
			"--min", q,
			"--max", q,
			"--speed", "6",
			"-j", "all",
			src,
			dst,
		}
	})
}
