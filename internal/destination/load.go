package destination

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the layout of a destinations YAML file.
//
//	destinations:
//	  web:
//	    format: jpeg
//	    targets:
//	      large: {width: 1920, height: 1280}
type File struct {
	Destinations map[string]Destination `yaml:"destinations"`
}

// LoadFile reads destinations from a YAML file. Relative profile
// filenames are resolved against the file's directory.
func LoadFile(path string) (map[string]Destination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for name, d := range ds {
		if d.Profile != nil && d.Profile.Filename != "" && !filepath.IsAbs(d.Profile.Filename) {
			ref := *d.Profile
			ref.Filename = filepath.Join(base, ref.Filename)
			d.Profile = &ref
			ds[name] = d
		}
	}
	return ds, nil
}

// Parse decodes a destinations document. Unknown keys are rejected. A
// destination without a name takes its key.
func Parse(data []byte) (map[string]Destination, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse destinations: %w", err)
	}
	out := make(map[string]Destination, len(f.Destinations))
	for key, d := range f.Destinations {
		if d.Name == "" {
			d.Name = key
		}
		out[key] = d
	}
	return out, nil
}
