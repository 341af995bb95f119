package sources

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"news_digest/internal/model"
)

// SeedSource is one entry of the sources file.
type SeedSource struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Endpoint   string   `yaml:"endpoint"`
	Query      string   `yaml:"query"`
	Language   string   `yaml:"language"`
	Region     string   `yaml:"region"`
	Weight     *float64 `yaml:"weight"`
	Categories []string `yaml:"categories"`
	MaxEntries int      `yaml:"max_entries"`
	Enabled    *bool    `yaml:"enabled"`
}

type seedFile struct {
	Sources []SeedSource `yaml:"sources"`
}

// LoadSeed reads the YAML sources file at path.
func LoadSeed(path string) ([]model.Source, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates a sources document. Weight defaults to 1
// and enabled to true.
func ParseSeed(raw []byte) ([]model.Source, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	out := make([]model.Source, 0, len(f.Sources))
	seen := make(map[string]struct{}, len(f.Sources))
	for i, s := range f.Sources {
		src, err := s.toSource()
		if err != nil {
			return nil, fmt.Errorf("source #%d: %w", i+1, err)
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("source #%d: duplicate name %q", i+1, src.Name)
		}
		seen[src.Name] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}

func (s SeedSource) toSource() (model.Source, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return model.Source{}, errors.New("name is required")
	}
	kind := strings.ToLower(strings.TrimSpace(s.Kind))

	src := model.Source{
		Name:       name,
		Kind:       kind,
		Endpoint:   strings.TrimSpace(s.Endpoint),
		Query:      strings.TrimSpace(s.Query),
		Categories: s.Categories,
		Language:   s.Language,
		Region:     s.Region,
		Weight:     1,
		MaxEntries: s.MaxEntries,
		Enabled:    true,
	}
	if s.Weight != nil {
		src.Weight = *s.Weight
	}
	if s.Enabled != nil {
		src.Enabled = *s.Enabled
	}

	switch kind {
	case model.KindRSS:
		src.Type = model.SourceRSS
		if src.Endpoint == "" {
			return model.Source{}, fmt.Errorf("%s: endpoint is required for rss", name)
		}
	case model.KindArxiv, model.KindCrossref, model.KindOpenAlex, model.KindPubMed:
		src.Type = model.SourceAPI
		if src.Query == "" {
			return model.Source{}, fmt.Errorf("%s: query is required for %s", name, kind)
		}
	default:
		return model.Source{}, fmt.Errorf("%s: unknown kind %q", name, s.Kind)
	}
	if src.Weight < 0 {
		return model.Source{}, fmt.Errorf("%s: weight must not be negative", name)
	}
	return src, nil
}
