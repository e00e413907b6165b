package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AnyUserName/photofinish/internal/manifest"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a processed output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	path, err := manifestPath(args[0])
	if err != nil {
		return err
	}
	m, err := manifest.ReadJSON(path)
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

// manifestPath accepts either a manifest file or the directory holding one.
func manifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return filepath.Join(path, manifest.FileName), nil
	}
	return path, nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Destinations:     %v\n", m.Destinations)
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:          %d\n", m.BuildInfo.Workers)
		fmt.Printf("  Encoders:         %v\n", m.BuildInfo.Encoders)
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total sources:    %d\n", s.TotalSources)
	fmt.Printf("  Total outputs:    %d\n", s.TotalOutputs)
	fmt.Printf("  Input size:       %s\n", formatBytes(s.TotalInputBytes))
	fmt.Printf("  Output size:      %s\n", formatBytes(s.TotalOutputBytes))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Printf("  Output/input:     %.1f%%\n", ratio)
	}
	fmt.Println()

	// Per-format breakdown.
	type tally struct {
		count int
		bytes int64
	}
	formatStats := map[string]tally{}
	modelStats := map[string]int{}
	targetStats := map[string]int{}
	for _, src := range m.Sources {
		for _, o := range src.Outputs {
			fs := formatStats[o.Format]
			fs.count++
			fs.bytes += o.Size
			formatStats[o.Format] = fs
			modelStats[fmt.Sprintf("%s %d-bit", o.ColourModel, o.Depth)]++
			targetStats[o.Destination+"/"+o.Target]++
		}
	}

	fmt.Println("  Format breakdown:")
	for _, f := range outputFormats {
		if fs, ok := formatStats[f]; ok {
			fmt.Printf("    %-6s  %4d files  %s\n", f, fs.count, formatBytes(fs.bytes))
		}
	}
	fmt.Println()

	fmt.Println("  Colour breakdown:")
	for _, k := range sortedKeys(modelStats) {
		fmt.Printf("    %-18s %4d outputs\n", k, modelStats[k])
	}
	fmt.Println()

	fmt.Println("  Target breakdown:")
	for _, k := range sortedKeys(targetStats) {
		fmt.Printf("    %-30s %4d outputs\n", truncKey(k, 30), targetStats[k])
	}

	// Warnings.
	var warnings []string
	for _, key := range sortedKeys(m.Sources) {
		src := m.Sources[key]
		if len(src.Outputs) == 0 {
			warnings = append(warnings, fmt.Sprintf("source %q has no outputs", key))
		}
		for _, e := range src.Errors {
			warnings = append(warnings, fmt.Sprintf("source %q: %s", key, e))
		}
	}
	if len(warnings) > 0 {
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
	}
	fmt.Println()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
