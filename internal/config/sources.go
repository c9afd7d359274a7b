package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/fullcount-labs/athlete-cli/internal/model"
)

// Source describes one instrument export format: which file layout it
// ships, which fact domain its sessions land in, and where the athlete
// identity fields live.
type Source struct {
	Name    string    `yaml:"name"`
	Format  string    `yaml:"format"` // csv, xlsx or xml
	Domain  string    `yaml:"domain"`
	Sheet   string    `yaml:"sheet,omitempty"` // xlsx only; first sheet when empty
	Columns ColumnMap `yaml:"columns"`
}

// ColumnMap names the columns (or XML elements) carrying each field. Only
// LocalID and Name are required; everything else is best-effort.
type ColumnMap struct {
	LocalID     string   `yaml:"local_id"`
	Name        string   `yaml:"name"`
	DateOfBirth string   `yaml:"date_of_birth,omitempty"`
	Gender      string   `yaml:"gender,omitempty"`
	HeightCM    string   `yaml:"height_cm,omitempty"`
	WeightKG    string   `yaml:"weight_kg,omitempty"`
	Email       string   `yaml:"email,omitempty"`
	SessionDate string   `yaml:"session_date"`
	Metrics     []string `yaml:"metrics,omitempty"`
}

// LoadSources reads the source registry from a YAML file keyed by source
// system name.
func LoadSources(path string) (map[string]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}

	var sources map[string]Source
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}

	for name, src := range sources {
		if src.Name == "" {
			src.Name = name
			sources[name] = src
		}
		switch src.Format {
		case "csv", "xlsx", "xml":
		default:
			return nil, eris.Errorf("config: source %s: unknown format %q", name, src.Format)
		}
		if !model.ValidDomain(src.Domain) {
			return nil, eris.Errorf("config: source %s: unknown domain %q", name, src.Domain)
		}
		if src.Columns.LocalID == "" || src.Columns.Name == "" {
			return nil, eris.Errorf("config: source %s: local_id and name columns are required", name)
		}
	}
	return sources, nil
}
