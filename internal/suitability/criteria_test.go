package suitability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/suitability-cli/internal/reclass"
)

const profilesYAML = `
species:
  - species_label: oyster
    min_temp: 11
    max_temp: 30
    min_depth: -70
    max_depth: 0
  - species_label: mussel
    min_temp: 5
    max_temp: 20
    min_depth: -30
    max_depth: -1
`

func TestParseProfiles(t *testing.T) {
	got, err := ParseProfiles([]byte(profilesYAML))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Criteria{SpeciesLabel: "oyster", MinTemp: 11, MaxTemp: 30, MinDepth: -70, MaxDepth: 0}, got[0])
	assert.Equal(t, "mussel", got[1].SpeciesLabel)
	assert.Equal(t, -1.0, got[1].MaxDepth)
}

func TestParseProfiles_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "species: []", want: "no species"},
		{name: "malformed", doc: "species: [", want: "parse profiles"},
		{name: "missing label", doc: "species:\n  - min_temp: 1\n    max_temp: 2", want: "no species_label"},
		{name: "duplicate", doc: "species:\n  - species_label: a\n  - species_label: a", want: "duplicate"},
		{name: "inverted", doc: "species:\n  - species_label: a\n    min_temp: 9\n    max_temp: 3", want: `profile "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfiles([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o600))

	got, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCriteria_Split(t *testing.T) {
	c := Criteria{MinTemp: 1, MaxTemp: 2, MinDepth: -3, MaxDepth: -4}
	assert.Equal(t, reclass.Criterion{Name: CriterionSST, Min: 1, Max: 2}, c.SST())
	assert.Equal(t, reclass.Criterion{Name: CriterionDepth, Min: -3, Max: -4}, c.Depth())
	assert.ErrorIs(t, c.Validate(), reclass.ErrInvalidRule)
}
