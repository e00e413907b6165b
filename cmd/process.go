package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/AnyUserName/photofinish/internal/destination"
	"github.com/AnyUserName/photofinish/internal/logging"
	"github.com/AnyUserName/photofinish/internal/manifest"
	"github.com/AnyUserName/photofinish/internal/perf"
	"github.com/AnyUserName/photofinish/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	processOutDir       string
	processDestinations []string
	processConfig       string
	processWorkers      int
	processRowWorkers   int
)

var processCmd = &cobra.Command{
	Use:   "process <input_dir>",
	Short: "Produce every destination's outputs for the images in a directory",
	Long: `Scans input directory for images (png, jpg, jpeg, webp, gif, bmp, tiff),
converts each to the Lab working space and writes one output per
destination target, then writes a manifest file.

Destinations are either built in (see "photofinish destinations") or
loaded from a YAML file given with --config.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutDir, "out", "o", "./photofinish_out", "output directory")
	processCmd.Flags().StringSliceVarP(&processDestinations, "destinations", "d", []string{"web"}, "destinations to produce")
	processCmd.Flags().StringVarP(&processConfig, "config", "c", "", "YAML file with additional destinations")
	processCmd.Flags().IntVarP(&processWorkers, "workers", "w", 0, "images processed at once (0 = NumCPU/4)")
	processCmd.Flags().IntVar(&processRowWorkers, "row-workers", 0, "row workers per stage (0 = GOMAXPROCS)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	inputDir := args[0]
	start := time.Now()

	absInput, err := filepath.Abs(inputDir)
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	absOutput, err := filepath.Abs(processOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	var loaded map[string]destination.Destination
	if processConfig != "" {
		if loaded, err = destination.LoadFile(processConfig); err != nil {
			return err
		}
	}
	dests, err := destination.Resolve(processDestinations, loaded)
	if err != nil {
		return err
	}

	logVerbose("input:        %s", absInput)
	logVerbose("output:       %s", absOutput)
	logVerbose("destinations: %s", strings.Join(processDestinations, ", "))

	if err := os.MkdirAll(absOutput, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var tracer perf.Tracer
	if benchmark {
		tracer = perf.New(logging.Logger())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Config{
		InputDir:     absInput,
		OutputDir:    absOutput,
		Destinations: dests,
		Workers:      processWorkers,
		RowWorkers:   processRowWorkers,
		Tracer:       tracer,
	})
	m, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted")
		}
		return fmt.Errorf("pipeline: %w", err)
	}

	manifestPath := filepath.Join(absOutput, manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printProcessReport(m, time.Since(start))
	return nil
}

func printProcessReport(m *manifest.Manifest, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║            photofinish run complete              ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()

	stats := m.Stats
	fmt.Printf("  Sources:      %d\n", stats.TotalSources)
	fmt.Printf("  Outputs:      %d\n", stats.TotalOutputs)
	fmt.Printf("  Input size:   %s\n", formatBytes(stats.TotalInputBytes))
	fmt.Printf("  Output size:  %s\n", formatBytes(stats.TotalOutputBytes))
	if stats.Failed > 0 {
		fmt.Printf("  Failed:       %d destination runs (see manifest errors)\n", stats.Failed)
	}
	fmt.Printf("  Time:         %s\n", elapsed.Round(time.Millisecond))
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:      %d\n", m.BuildInfo.Workers)
	}
	fmt.Println()

	// Outputs per destination.
	perDest := map[string]struct {
		count int
		bytes int64
	}{}
	for _, s := range m.Sources {
		for _, o := range s.Outputs {
			ds := perDest[o.Destination]
			ds.count++
			ds.bytes += o.Size
			perDest[o.Destination] = ds
		}
	}
	fmt.Println("  Destinations:")
	for _, name := range m.Destinations {
		ds := perDest[name]
		fmt.Printf("    %-16s %4d files  %s\n", truncKey(name, 16), ds.count, formatBytes(ds.bytes))
	}
	fmt.Println()

	// Sources with errors.
	var failed []string
	for key, s := range m.Sources {
		if len(s.Errors) > 0 {
			failed = append(failed, key)
		}
	}
	sort.Strings(failed)
	if len(failed) > 0 {
		fmt.Printf("  Errors (%d sources):\n", len(failed))
		for _, key := range failed {
			for _, e := range m.Sources[key].Errors {
				fmt.Printf("    %-40s %s\n", truncKey(key, 40), e)
			}
		}
		fmt.Println()
	}

	fmts := detectOutputFormats(m)
	fmt.Printf("  Formats:      %s\n", strings.Join(fmts, ", "))
	fmt.Println()

	data, _ := json.Marshal(m)
	fmt.Printf("  Manifest:     %s (%s)\n", manifest.FileName, formatBytes(int64(len(data))))
	fmt.Println()
}

// outputFormats is the display order of output formats.
var outputFormats = []string{"jpeg", "png", "tiff", "webp", "avif"}

func detectOutputFormats(m *manifest.Manifest) []string {
	set := map[string]bool{}
	for _, s := range m.Sources {
		for _, o := range s.Outputs {
			set[o.Format] = true
		}
	}
	var out []string
	for _, f := range outputFormats {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
