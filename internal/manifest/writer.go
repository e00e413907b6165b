package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// New creates an empty manifest with defaults.
func New(destinations []string) *Manifest {
	return &Manifest{
		Version:      SupportedManifestVersion,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Destinations: destinations,
		BasePath:     "./",
		Sources:      make(map[string]Source),
	}
}

// ComputeStats recalculates aggregate statistics from sources.
func (m *Manifest) ComputeStats() {
	var s Stats
	s.TotalSources = len(m.Sources)
	for _, src := range m.Sources {
		s.TotalInputBytes += src.Original.Size
		s.TotalOutputs += len(src.Outputs)
		s.Failed += len(src.Errors)
		for _, o := range src.Outputs {
			s.TotalOutputBytes += o.Size
		}
	}
	m.Stats = s
}

// WriteJSON serializes the manifest to a JSON file with stable ordering.
func WriteJSON(m *Manifest, path string) error {
	m.ComputeStats()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON loads a manifest. Unknown fields are ignored.
func ReadJSON(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
