package manifest

// Manifest is the top-level output of a photofinish run.
type Manifest struct {
	Version      int               `json:"version"`
	GeneratedAt  string            `json:"generated_at"`
	Destinations []string          `json:"destinations"`
	BasePath     string            `json:"base_path"`
	BuildInfo    *BuildInfo        `json:"build_info,omitempty"`
	Sources      map[string]Source `json:"sources"`
	Stats        Stats             `json:"stats"`
}

// BuildInfo captures run-time parameters for diagnostics.
type BuildInfo struct {
	Workers  int      `json:"workers"`
	Encoders []string `json:"encoders,omitempty"`
}

// Source describes a single source image and every output written from it.
type Source struct {
	Original OriginalInfo `json:"original"`
	Outputs  []Output     `json:"outputs"`
	Errors   []string     `json:"errors,omitempty"` // failed (destination, target) pairs
}

// OriginalInfo holds metadata about the source image.
type OriginalInfo struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	ColourModel string `json:"colour_model"`
	Size        int64  `json:"size"`
	HasAlpha    bool   `json:"has_alpha"`
}

// Output is one encoded file for a destination target.
type Output struct {
	Destination string  `json:"destination"`
	Target      string  `json:"target"`
	Format      string  `json:"format"` // "jpeg", "png", "tiff", "webp", "avif"
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Depth       int     `json:"depth"`
	ColourModel string  `json:"colour_model"`
	Profile     string  `json:"profile"`
	Resolution  float64 `json:"resolution,omitempty"` // PPI
	Size        int64   `json:"size"`                 // bytes on disk
	Hash        string  `json:"hash"`                 // first 16 hex chars of xxhash64
	Path        string  `json:"path"`                 // relative to base_path
}

// Stats aggregates run metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalSources     int   `json:"total_sources"`
	TotalOutputs     int   `json:"total_outputs"`
	Failed           int   `json:"failed,omitempty"`
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1

// FileName is the manifest file name inside an output directory.
const FileName = "photofinish.manifest.json"
