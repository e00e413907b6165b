package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/AnyUserName/photofinish/internal/cms"
	"github.com/AnyUserName/photofinish/internal/codec"
	"github.com/AnyUserName/photofinish/internal/dither"
	"github.com/AnyUserName/photofinish/internal/frame"
	"github.com/AnyUserName/photofinish/internal/hasher"
	"github.com/AnyUserName/photofinish/internal/logging"
	"github.com/AnyUserName/photofinish/internal/manifest"
	"github.com/AnyUserName/photofinish/internal/raster"
	"github.com/AnyUserName/photofinish/internal/resample"
	"github.com/AnyUserName/photofinish/internal/sharpen"
)

// fullTarget names the single output of a destination that does not resize.
const fullTarget = "full"

// job is one decoded source in the working space.
type job struct {
	src  Source
	work *raster.Image
	// orig is the decoded format, which decides between greyscale and
	// colour output when the destination does not.
	orig raster.Format
}

// sourceResult holds the result of processing a single source image.
type sourceResult struct {
	key    string
	source manifest.Source
	err    error
}

// processSource decodes one source, converts it to the Lab working space
// and runs every destination over it.
func (p *Pipeline) processSource(ctx context.Context, src Source, plans []plan) sourceResult {
	result := sourceResult{key: src.Key}

	img, err := codec.Decode(src.AbsPath)
	if err != nil {
		result.err = fmt.Errorf("decode %s: %w", src.RelPath, err)
		return result
	}
	f := img.Format()
	result.source.Original = manifest.OriginalInfo{
		Width:       img.Width(),
		Height:      img.Height(),
		Format:      src.Format,
		ColourModel: f.ColourModel().String(),
		Size:        src.Size,
		HasAlpha:    f.ExtraChannels() > 0,
	}

	working := raster.LabDouble().SetExtraChannels(f.ExtraChannels())
	work, err := cms.TransformImage(ctx, img, cms.LabProfile(), working, cms.IntentPerceptual, p.cmsOptions(true))
	if err != nil {
		result.err = fmt.Errorf("working space %s: %w", src.RelPath, err)
		return result
	}

	j := job{src: src, work: work, orig: f}
	for _, pl := range plans {
		d := pl.dest
		outputs, err := p.processDestination(ctx, j, pl)
		result.source.Outputs = append(result.source.Outputs, outputs...)
		if err != nil {
			logging.Logger().Error("destination failed",
				slog.String("source", src.Key),
				slog.String("destination", d.Name),
				slog.Any("error", err))
			result.source.Errors = append(result.source.Errors, fmt.Sprintf("%s: %v", d.Name, err))
		}
	}
	return result
}

// processDestination writes every target of pl. The first failing target
// aborts the destination; outputs already written are still returned.
func (p *Pipeline) processDestination(ctx context.Context, j job, pl plan) ([]manifest.Output, error) {
	d := pl.dest
	if d.NoResize {
		out, err := p.processTarget(ctx, j, pl, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fullTarget, err)
		}
		return []manifest.Output{out}, nil
	}

	var outputs []manifest.Output
	for _, t := range d.Frames() {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		out, err := p.processTarget(ctx, j, pl, &t)
		if err != nil {
			return outputs, fmt.Errorf("%s: %w", t.Name, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// processTarget produces one output file: crop and resize (unless t is
// nil), sharpen, transform to the encoder's format, dither down to 8 bits
// when needed, encode and write. The working image is never modified or freed.
func (p *Pipeline) processTarget(ctx context.Context, j job, pl plan, t *frame.Target) (manifest.Output, error) {
	src, work, d := j.src, j.work, pl.dest
	img, owned := work, false
	name := fullTarget
	resolution := 0.0

	if t != nil {
		name = t.Name
		fr, err := p.solver.Solve(work.Width(), work.Height(), *t)
		if err != nil {
			return manifest.Output{}, fmt.Errorf("crop: %w", err)
		}
		logging.Logger().Debug("frame", slog.String("source", src.Key), slog.String("destination", d.Name), slog.String("frame", fr.String()))
		if img, err = fr.Resize(ctx, work, pl.filter, p.resampleOptions(false)); err != nil {
			return manifest.Output{}, fmt.Errorf("resize: %w", err)
		}
		owned = true
		resolution = fr.Resolution
	} else if d.Size != nil {
		resolution = float64(max(work.Width(), work.Height())) / *d.Size
	}

	var err error
	if pl.kernel != nil {
		if img, err = pl.kernel.Convolve(ctx, img, p.sharpenOptions(owned)); err != nil {
			return manifest.Output{}, fmt.Errorf("sharpen: %w", err)
		}
		owned = true
	}

	enc, profile := pl.enc, pl.profile
	requested := d.RequestedFormat(j.orig, profile)
	final := enc.PreferredFormat(requested)
	if profile != nil && final.ColourModel() != profile.ColourModel() {
		// Encoders write alpha only alongside RGB; grey outputs lose it.
		final = enc.PreferredFormat(requested.SetExtraChannels(0))
	}

	// 8-bit outputs are transformed at 16 bits and dithered down.
	transformFmt := final
	if final.Is8bit() {
		transformFmt = final.Set16bit()
	}
	out, err := cms.TransformImage(ctx, img, profile, transformFmt, d.RenderingIntent(), p.cmsOptions(owned))
	if err != nil {
		return manifest.Output{}, fmt.Errorf("transform: %w", err)
	}
	if final.Is8bit() {
		if out, err = dither.DitherImage(out, true, p.cfg.Tracer); err != nil {
			return manifest.Output{}, fmt.Errorf("dither: %w", err)
		}
	}
	if resolution > 0 {
		out.SetResolution(resolution)
	}
	profileName := ""
	if out.Profile() != nil {
		profileName = out.Profile().Name()
	}
	width, height := out.Width(), out.Height()

	goimg, err := codec.ToImage(out, true)
	if err != nil {
		return manifest.Output{}, err
	}
	data, err := enc.Encode(goimg, codec.Options{Quality: d.Quality(), Compression: d.Compression()})
	if err != nil {
		return manifest.Output{}, fmt.Errorf("encode %s: %w", enc.Format(), err)
	}

	// Content hash for filename: <dir>/<key dir>/<name>.<target>.<hash>.<ext>
	contentHash := hasher.ContentHash(data, 16)
	fileName := fmt.Sprintf("%s.%s.%s.%s", filepath.Base(src.Key), name, contentHash[:8], enc.Extension())
	dir := d.Dir
	if dir == "" {
		dir = d.Name
	}
	relPath := filepath.ToSlash(filepath.Join(dir, filepath.Dir(src.Key), fileName))

	outPath := filepath.Join(p.cfg.OutputDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return manifest.Output{}, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return manifest.Output{}, fmt.Errorf("write %s: %w", relPath, err)
	}

	return manifest.Output{
		Destination: d.Name,
		Target:      name,
		Format:      enc.Format(),
		Width:       width,
		Height:      height,
		Depth:       8 * final.BytesPerChannel(),
		ColourModel: final.ColourModel().String(),
		Profile:     profileName,
		Resolution:  math.Round(resolution*100) / 100,
		Size:        int64(len(data)),
		Hash:        contentHash,
		Path:        relPath,
	}, nil
}

func (p *Pipeline) cmsOptions(canFree bool) cms.Options {
	return cms.Options{CanFree: canFree, Workers: p.cfg.RowWorkers, Tracer: p.cfg.Tracer}
}

func (p *Pipeline) resampleOptions(canFree bool) resample.Options {
	return resample.Options{CanFree: canFree, Workers: p.cfg.RowWorkers, Tracer: p.cfg.Tracer}
}

func (p *Pipeline) sharpenOptions(canFree bool) sharpen.Options {
	return sharpen.Options{CanFree: canFree, Workers: p.cfg.RowWorkers, Tracer: p.cfg.Tracer}
}
