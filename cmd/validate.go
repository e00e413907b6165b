package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/photofinish/internal/hasher"
	"github.com/AnyUserName/photofinish/internal/manifest"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <out_dir_or_manifest>",
	Short: "Validate a photofinish manifest and check the referenced files",
	Long: `Checks the manifest fields, that every output file exists with the
recorded size, and that its content hash still matches.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	path, err := manifestPath(args[0])
	if err != nil {
		return err
	}
	m, err := manifest.ReadJSON(path)
	if err != nil {
		return err
	}

	errs := validateManifest(m, filepath.Dir(path))
	if len(errs) == 0 {
		fmt.Println("  ✓ Manifest is valid")
		fmt.Printf("  ✓ %d sources, %d outputs, all files present and unchanged\n",
			m.Stats.TotalSources, m.Stats.TotalOutputs)
		return nil
	}

	fmt.Printf("  ✗ Manifest has %d error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Printf("    • %s\n", e)
	}
	return fmt.Errorf("validation failed with %d errors", len(errs))
}

func validateManifest(m *manifest.Manifest, baseDir string) []string {
	var errs []string

	if m.Version != manifest.SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}

	known := map[string]bool{}
	for _, d := range m.Destinations {
		known[d] = true
	}

	seenPaths := map[string]bool{}
	for _, key := range sortedKeys(m.Sources) {
		src := m.Sources[key]
		if src.Original.Width <= 0 || src.Original.Height <= 0 {
			errs = append(errs, fmt.Sprintf("source %q: invalid original dimensions %dx%d",
				key, src.Original.Width, src.Original.Height))
		}
		if len(src.Outputs) == 0 && len(src.Errors) == 0 {
			errs = append(errs, fmt.Sprintf("source %q: no outputs", key))
		}

		for i, o := range src.Outputs {
			where := fmt.Sprintf("source %q output[%d]", key, i)
			if !known[o.Destination] {
				errs = append(errs, fmt.Sprintf("%s: unknown destination %q", where, o.Destination))
			}
			if o.Format == "" {
				errs = append(errs, fmt.Sprintf("%s: empty format", where))
			}
			if o.Width <= 0 || o.Height <= 0 {
				errs = append(errs, fmt.Sprintf("%s: invalid dimensions %dx%d", where, o.Width, o.Height))
			}
			if o.Depth != 8 && o.Depth != 16 {
				errs = append(errs, fmt.Sprintf("%s: invalid depth %d", where, o.Depth))
			}
			if o.Hash == "" {
				errs = append(errs, fmt.Sprintf("%s: missing hash", where))
			}
			if o.Path == "" {
				errs = append(errs, fmt.Sprintf("%s: missing path", where))
				continue
			}

			if seenPaths[o.Path] {
				errs = append(errs, fmt.Sprintf("%s: duplicate path %q", where, o.Path))
			}
			seenPaths[o.Path] = true

			if msg := checkFile(filepath.Join(baseDir, filepath.FromSlash(o.Path)), o); msg != "" {
				errs = append(errs, fmt.Sprintf("%s: %s", where, msg))
			}
		}
	}

	// Verify stats consistency.
	outputs, failed := 0, 0
	for _, src := range m.Sources {
		outputs += len(src.Outputs)
		failed += len(src.Errors)
	}
	if m.Stats.TotalSources != len(m.Sources) {
		errs = append(errs, fmt.Sprintf("stats.total_sources mismatch: %d != %d", m.Stats.TotalSources, len(m.Sources)))
	}
	if m.Stats.TotalOutputs != outputs {
		errs = append(errs, fmt.Sprintf("stats.total_outputs mismatch: %d != %d", m.Stats.TotalOutputs, outputs))
	}
	if m.Stats.Failed != failed {
		errs = append(errs, fmt.Sprintf("stats.failed mismatch: %d != %d", m.Stats.Failed, failed))
	}

	return errs
}

// checkFile compares one output file against its manifest entry and
// returns a description of the first difference.
func checkFile(path string, o manifest.Output) string {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("file not found: %s", o.Path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err.Error()
	}
	if o.Size > 0 && info.Size() != o.Size {
		return fmt.Sprintf("size mismatch: manifest=%d, disk=%d", o.Size, info.Size())
	}
	if o.Hash == "" {
		return ""
	}
	got, err := hasher.ContentHashReader(f, len(o.Hash))
	if err != nil {
		return fmt.Sprintf("read: %v", err)
	}
	if got != o.Hash {
		return fmt.Sprintf("hash mismatch: manifest=%s, disk=%s", o.Hash, got)
	}
	return ""
}
