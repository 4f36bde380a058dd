// Package suitability runs the species suitability pipeline: align the
// environmental grids, reclassify each against its thresholds, combine the
// masks, and aggregate suitable area per zone.
package suitability

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/suitability-cli/internal/reclass"
)

// Criterion names used in masks, logs, and errors.
const (
	CriterionSST   = "sst"
	CriterionDepth = "depth"
)

// Criteria are the per-run thresholds. SpeciesLabel is carried through to
// outputs and never interpreted.
type Criteria struct {
	SpeciesLabel string  `json:"species_label" yaml:"species_label" mapstructure:"species_label"`
	MinTemp      float64 `json:"min_temp" yaml:"min_temp" mapstructure:"min_temp"`
	MaxTemp      float64 `json:"max_temp" yaml:"max_temp" mapstructure:"max_temp"`
	MinDepth     float64 `json:"min_depth" yaml:"min_depth" mapstructure:"min_depth"`
	MaxDepth     float64 `json:"max_depth" yaml:"max_depth" mapstructure:"max_depth"`
}

// SST returns the temperature criterion (°C, inclusive).
func (c Criteria) SST() reclass.Criterion {
	return reclass.Criterion{Name: CriterionSST, Min: c.MinTemp, Max: c.MaxTemp}
}

// Depth returns the depth criterion (metres, sign convention is the
// caller's, inclusive).
func (c Criteria) Depth() reclass.Criterion {
	return reclass.Criterion{Name: CriterionDepth, Min: c.MinDepth, Max: c.MaxDepth}
}

// Validate checks both criteria.
func (c Criteria) Validate() error {
	if err := c.SST().Validate(); err != nil {
		return err
	}
	return c.Depth().Validate()
}

// LoadProfiles reads a YAML file of species criteria:
//
//	species:
//	  - species_label: oyster
//	    min_temp: 11
//	    ...
func LoadProfiles(path string) ([]Criteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "suitability: read profiles %s", path)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes and validates a species profile document. Labels
// must be unique.
func ParseProfiles(data []byte) ([]Criteria, error) {
	var doc struct {
		Species []Criteria `yaml:"species"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "suitability: parse profiles")
	}
	if len(doc.Species) == 0 {
		return nil, eris.New("suitability: profiles file lists no species")
	}

	seen := make(map[string]bool, len(doc.Species))
	for i, c := range doc.Species {
		if c.SpeciesLabel == "" {
			return nil, eris.Errorf("suitability: profile %d has no species_label", i)
		}
		if seen[c.SpeciesLabel] {
			return nil, eris.Errorf("suitability: duplicate species_label %q", c.SpeciesLabel)
		}
		seen[c.SpeciesLabel] = true
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "suitability: profile %q", c.SpeciesLabel)
		}
	}
	return doc.Species, nil
}
