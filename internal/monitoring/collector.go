package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/store"
)

// Snapshot holds a point-in-time view of recent suitability runs.
type Snapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Over completed runs.
	ZonesScored      int       `json:"zones_scored"`
	ZonesSkipped     int       `json:"zones_skipped"`
	ZonesSkippedRate float64   `json:"zones_skipped_rate"`
	SuitableKM2      float64   `json:"suitable_km2"`
	AvgRunDurationMS int64     `json:"avg_run_duration_ms"`
	SpeciesEvaluated int       `json:"species_evaluated"`
	LookbackHours    int       `json:"lookback_hours"`
	CollectedAt      time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarises stored runs.
type Collector struct {
	runs  RunLister
	clock clockwork.Clock
}

// NewCollector creates a collector over runs. A nil clock uses real time.
func NewCollector(runs RunLister, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

// maxRunsPerSnapshot bounds how many runs a single snapshot reads.
const maxRunsPerSnapshot = 10000

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.clock.Now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxRunsPerSnapshot,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	species := make(map[string]bool)
	var totalDuration int64
	for _, r := range runs {
		snap.RunsTotal++
		species[r.SpeciesLabel] = true
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Summary != nil {
			snap.ZonesScored += r.Summary.ZonesScored
			snap.ZonesSkipped += r.Summary.ZonesFailed
			snap.SuitableKM2 += r.Summary.MaskSuitableKM2
			totalDuration += r.Summary.DurationMS
		}
	}
	snap.SpeciesEvaluated = len(species)

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if zones := snap.ZonesScored + snap.ZonesSkipped; zones > 0 {
		snap.ZonesSkippedRate = float64(snap.ZonesSkipped) / float64(zones)
	}
	if snap.RunsComplete > 0 {
		snap.AvgRunDurationMS = totalDuration / int64(snap.RunsComplete)
	}
	return snap, nil
}
