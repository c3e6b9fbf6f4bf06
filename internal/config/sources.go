package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SourceEntry is one source declared in the registry file.
type SourceEntry struct {
	Key                string   `yaml:"key"`
	DisplayName        string   `yaml:"display_name"`
	Type               string   `yaml:"type"`
	Cadence            string   `yaml:"cadence"`
	ProductionApproved bool     `yaml:"production_approved"`
	LegalRisk          string   `yaml:"legal_risk"`
	Strategies         []string `yaml:"strategies"`
	FeedURLs           []string `yaml:"feed_urls"`
	MaxItems           int      `yaml:"max_items"`
}

// SourcesFile is the parsed registry file.
type SourcesFile struct {
	Sources []SourceEntry `yaml:"sources"`
}

// LoadSources reads and validates the source registry file.
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}
	return ParseSources(data)
}

// ParseSources decodes registry YAML. Unknown fields are rejected so typos
// in thresholds or URLs surface at startup.
func ParseSources(data []byte) (*SourcesFile, error) {
	var f SourcesFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "config: parse sources file")
	}

	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			return nil, eris.Errorf("config: sources[%d]: key is required", i)
		}
		if seen[s.Key] {
			return nil, eris.Errorf("config: duplicate source key %q", s.Key)
		}
		seen[s.Key] = true
		if s.DisplayName == "" {
			s.DisplayName = s.Key
		}
		if s.Type == "" {
			s.Type = "feed"
		}
		if s.Type != "feed" {
			return nil, eris.Errorf("config: source %q: unsupported type %q", s.Key, s.Type)
		}
		if s.Cadence == "" {
			s.Cadence = "FREQ=DAILY;BYHOUR=6;BYMINUTE=0"
		}
	}
	return &f, nil
}
