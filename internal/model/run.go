// Package model holds the persisted shapes of suitability runs.
package model

import "time"

// RunStatus represents the current state of a suitability run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Thresholds are the criteria a run was evaluated with.
type Thresholds struct {
	MinTemp  float64 `json:"min_temp"`
	MaxTemp  float64 `json:"max_temp"`
	MinDepth float64 `json:"min_depth"`
	MaxDepth float64 `json:"max_depth"`
}

// RunInputs records where a run's grids and zones came from.
type RunInputs struct {
	SSTPath   string `json:"sst_path,omitempty"`
	DepthPath string `json:"depth_path,omitempty"`
	ZonesPath string `json:"zones_path,omitempty"`
	CRS       string `json:"crs,omitempty"`
	AreaModel string `json:"area_model,omitempty"`
}

// Run represents one pipeline invocation for one species.
type Run struct {
	ID           string      `json:"id"`
	SpeciesLabel string      `json:"species_label"`
	Thresholds   Thresholds  `json:"thresholds"`
	Inputs       RunInputs   `json:"inputs"`
	Status       RunStatus   `json:"status"`
	Summary      *RunSummary `json:"summary,omitempty"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// RunSummary holds the report totals of a completed run.
type RunSummary struct {
	SuitableCells      int     `json:"suitable_cells"`
	MaskSuitableKM2    float64 `json:"mask_suitable_km2"`
	ZonedSuitableKM2   float64 `json:"zoned_suitable_km2"`
	UnzonedSuitableKM2 float64 `json:"unzoned_suitable_km2"`
	ZonesScored        int     `json:"zones_scored"`
	ZonesFailed        int     `json:"zones_failed"`
	DurationMS         int64   `json:"duration_ms"`

	// SkippedZones lists the zones counted in ZonesFailed.
	SkippedZones []SkippedZone `json:"skipped_zones,omitempty"`
}

// SkippedZone is a zone excluded from a run's result table.
type SkippedZone struct {
	ZoneID          string  `json:"zone_id"`
	SuitableAreaKM2 float64 `json:"suitable_area_km2"`
	Flag            string  `json:"flag"`
	Reason          string  `json:"reason"`
}

// ZoneResult is one stored row of a run's result table.
type ZoneResult struct {
	RunID           string   `json:"run_id"`
	Seq             int      `json:"seq"`
	ZoneID          string   `json:"zone_id"`
	SuitableAreaKM2 float64  `json:"suitable_area_km2"`
	TotalAreaKM2    float64  `json:"total_area_km2"`
	PctSuitable     *float64 `json:"pct_suitable"`
	Flag            string   `json:"flag"`
}

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Zone is a catalogued zone polygon. Geometry is EWKB-encoded.
type Zone struct {
	ID           string   `json:"zone_id"`
	TotalAreaKM2 *float64 `json:"total_area_km2"`
	Geometry     []byte   `json:"-"`
}
