// Package pipeline drives a batch run: it scans the input directory and
// produces every destination's outputs for each source image.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/AnyUserName/photofinish/internal/cms"
	"github.com/AnyUserName/photofinish/internal/codec"
	"github.com/AnyUserName/photofinish/internal/destination"
	"github.com/AnyUserName/photofinish/internal/frame"
	"github.com/AnyUserName/photofinish/internal/logging"
	"github.com/AnyUserName/photofinish/internal/manifest"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/raster"
	"github.com/AnyUserName/photofinish/internal/resample"
	"github.com/AnyUserName/photofinish/internal/sharpen"
)

// Config holds all parameters for a pipeline run.
type Config struct {
	InputDir     string
	OutputDir    string
	Destinations []destination.Destination
	// Workers bounds how many sources are processed at once. Each holds a
	// full double-precision working copy, so the default is NumCPU/4.
	Workers int
	// RowWorkers bounds row parallelism inside each stage; <= 0 means GOMAXPROCS.
	RowWorkers int
	Tracer     perf.Tracer
}

// Pipeline orchestrates image processing.
type Pipeline struct {
	cfg      Config
	registry *codec.Registry
	solver   frame.Solver
}

// New creates a configured pipeline using every available encoder and the
// centred crop solver.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = max(1, runtime.NumCPU()/4)
	}
	return &Pipeline{
		cfg:      cfg,
		registry: codec.NewRegistry(),
		solver:   frame.CentreSolver{},
	}
}

// WithRegistry replaces the encoder registry.
func (p *Pipeline) WithRegistry(r *codec.Registry) *Pipeline {
	p.registry = r
	return p
}

// plan is a validated destination with its encoder, output profile,
// filter and sharpen kernel resolved once per run.
type plan struct {
	dest    destination.Destination
	enc     codec.Encoder
	profile *cms.Profile
	filter  resample.Filter
	kernel  *sharpen.Kernel2D
}

// prepare validates d and resolves everything its targets share. An output
// profile whose colour model the encoder cannot write is rejected here.
func (p *Pipeline) prepare(d destination.Destination) (plan, error) {
	if err := d.Validate(); err != nil {
		return plan{}, err
	}
	enc, err := p.registry.Lookup(d.OutputFormat())
	if err != nil {
		return plan{}, err
	}
	pl := plan{dest: d, enc: enc}
	if pl.profile, err = d.ColourProfile(); err != nil {
		return plan{}, err
	}
	if pl.profile != nil {
		model := pl.profile.ColourModel()
		if got := enc.PreferredFormat(d.RequestedFormat(raster.RGB8(), pl.profile)).ColourModel(); got != model {
			return plan{}, raster.TypeMismatchf("%s encoder writes %s, profile %s is %s", enc.Format(), got, pl.profile.Name(), model)
		}
	}
	if !d.NoResize {
		if pl.filter, err = d.Filter(); err != nil {
			return plan{}, err
		}
	}
	if pl.kernel, err = d.SharpenKernel(); err != nil {
		return plan{}, err
	}
	return pl, nil
}

// Run validates the destinations, then processes every source found under
// the input directory. Failures of a single (source, destination) pair are
// logged and recorded in the manifest; Run fails only when the
// configuration is invalid or no source could be decoded at all.
func (p *Pipeline) Run(ctx context.Context) (*manifest.Manifest, error) {
	log := logging.Logger()
	log.Debug("encoders", slog.String("available", p.registry.String()))

	if len(p.cfg.Destinations) == 0 {
		return nil, fmt.Errorf("no destinations")
	}
	names := make([]string, 0, len(p.cfg.Destinations))
	plans := make([]plan, 0, len(p.cfg.Destinations))
	for _, d := range p.cfg.Destinations {
		pl, err := p.prepare(d)
		if err != nil {
			return nil, fmt.Errorf("destination %q: %w", d.Name, err)
		}
		plans = append(plans, pl)
		names = append(names, d.Name)
	}

	// Step 1: Scan for images.
	sources, err := ScanImages(p.cfg.InputDir, p.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %s", p.cfg.InputDir)
	}
	log.Debug("scan complete", slog.Int("images", len(sources)))

	// Step 2: Process images in parallel.
	results := make([]sourceResult, len(sources))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			if ctx.Err() != nil {
				results[idx] = sourceResult{key: s.Key, err: ctx.Err()}
				return
			}
			log.Debug("processing", slog.String("source", s.Key))
			results[idx] = p.processSource(ctx, s, plans)
			if results[idx].err == nil {
				log.Debug("done", slog.String("source", s.Key),
					slog.Int("outputs", len(results[idx].source.Outputs)))
			}
		}(i, src)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Collect results into manifest.
	m := manifest.New(names)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			log.Error("source failed", slog.String("source", r.key), slog.Any("error", r.err))
			failed++
			continue
		}
		m.Sources[r.key] = r.source
	}
	if failed == len(sources) {
		return nil, fmt.Errorf("all %d images failed to process", failed)
	}
	if failed > 0 {
		log.Warn("some images had errors", slog.Int("failed", failed), slog.Int("total", len(sources)))
	}

	m.BuildInfo = &manifest.BuildInfo{
		Workers:  p.cfg.Workers,
		Encoders: p.registry.Available(),
	}
	m.ComputeStats()
	return m, nil
}
