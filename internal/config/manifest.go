package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest lists upstream services the engine keeps registered. The file
// is re-read whenever the watcher reports a change.
type Manifest struct {
	Services []ManifestEntry `yaml:"services"`
}

// ManifestEntry describes one service to register.
type ManifestEntry struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type,omitempty"` // WMS, WFS or WMTS; empty means probe
	Name string `yaml:"name,omitempty"`
}

// LoadManifest reads and validates the YAML service manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for i, svc := range m.Services {
		if strings.TrimSpace(svc.URL) == "" {
			return nil, fmt.Errorf("manifest service %d: url is required", i+1)
		}
	}

	return &m, nil
}
