package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pawhub/ingest-service/internal/model"
)

// sourcesFile is the layout of the YAML seed file administrators use to
// register scrape sites and affiliate networks.
type sourcesFile struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadSources reads and validates a YAML seed file. Every source must pass
// model.Source.Validate; ids must be unique within the file.
func LoadSources(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates YAML source definitions.
func ParseSources(data []byte) ([]model.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	seen := make(map[string]bool, len(f.Sources))
	for _, src := range f.Sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	return f.Sources, nil
}
