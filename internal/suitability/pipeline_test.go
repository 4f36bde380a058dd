package suitability

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/suitability-cli/internal/mapalgebra"
	"github.com/sells-group/suitability-cli/internal/monitoring"
	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/reclass"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

// tenKM lays out 2x2 grids of 10 km cells in a metre-based projection, so
// every cell is 100 km².
var tenKM = raster.Transform{OriginX: 0, CellWidth: 10000, OriginY: 20000, CellHeight: -10000}

const utm = "EPSG:32630"

func grid(t *testing.T, rows [][]float64) *raster.Grid {
	t.Helper()
	g, err := raster.New(rows, tenKM, utm, -9999)
	require.NoError(t, err)
	return g
}

func wholeGridZone(total float64) []zonal.Zone {
	return []zonal.Zone{zonal.NewZone("zone-1", total, zonal.Rect(0, 0, 20000, 20000))}
}

func suitableCells(mask *raster.Grid) [][]bool {
	out := make([][]bool, mask.Height)
	for r := range out {
		out[r] = make([]bool, mask.Width)
		for c := range out[r] {
			out[r][c] = mask.At(r, c) == reclass.Suitable
		}
	}
	return out
}

var baseCriteria = Criteria{SpeciesLabel: "oyster", MinTemp: 11, MaxTemp: 30, MinDepth: -70, MaxDepth: 0}

func TestRun_TwoByTwoScenario(t *testing.T) {
	sst := grid(t, [][]float64{{10, 12}, {25, 31}})
	depth := grid(t, [][]float64{{-5, -80}, {-10, -20}})

	out, err := NewRunner(Options{Workers: 1}).Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.NoError(t, err)

	// (0,0) fails temp, (0,1) fails depth (-80 < -70), (1,0) passes both,
	// (1,1) fails temp.
	assert.Equal(t, [][]bool{{false, false}, {true, false}}, suitableCells(out.Mask))
	assert.True(t, math.IsNaN(out.Mask.At(0, 0)))
	assert.Equal(t, "oyster", out.SpeciesLabel)
}

func TestRun_FiftyPercentOfZone(t *testing.T) {
	sst := grid(t, [][]float64{{10, 12}, {25, 31}})
	depth := grid(t, [][]float64{{-5, -60}, {-10, -80}})

	out, err := NewRunner(Options{}).Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.NoError(t, err)

	assert.Equal(t, [][]bool{{false, true}, {true, false}}, suitableCells(out.Mask))
	require.Len(t, out.Results(), 1)
	res := out.Results()[0]
	assert.Equal(t, "zone-1", res.ZoneID)
	assert.InDelta(t, 200, res.SuitableAreaKM2, 1e-9)
	require.NotNil(t, res.PctSuitable)
	assert.InDelta(t, 50.0, *res.PctSuitable, 1e-9)
}

func TestRun_DepthAlignedOntoSST(t *testing.T) {
	sst := grid(t, [][]float64{{20, 20}, {20, 20}})
	// Depth at 5 km resolution, wider than the SST extent.
	depth, err := raster.New([][]float64{
		{-100, -100, -100, -100, -100, -100},
		{-100, -10, -10, -90, -90, -100},
		{-100, -10, -10, -90, -90, -100},
		{-100, -90, -90, -10, -10, -100},
		{-100, -90, -90, -10, -10, -100},
		{-100, -100, -100, -100, -100, -100},
	}, raster.Transform{OriginX: -5000, CellWidth: 5000, OriginY: 25000, CellHeight: -5000}, utm, -9999)
	require.NoError(t, err)

	out, err := NewRunner(Options{}).Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.NoError(t, err)

	assert.True(t, sst.Conformant(out.Mask))
	assert.Equal(t, [][]bool{{true, false}, {false, true}}, suitableCells(out.Mask))
}

func TestRun_ReentrantAcrossCriteria(t *testing.T) {
	sst := grid(t, [][]float64{{10, 12}, {25, 31}})
	depth := grid(t, [][]float64{{-5, -60}, {-10, -80}})
	sstBefore, depthBefore := sst.Rows(), depth.Rows()
	zones := wholeGridZone(400)
	runner := NewRunner(Options{})

	first, err := runner.Run(context.Background(), sst, depth, zones, baseCriteria)
	require.NoError(t, err)

	// Different depth thresholds must not reuse the first call's depth mask.
	deep := baseCriteria
	deep.SpeciesLabel = "kelp"
	deep.MinDepth, deep.MaxDepth = -100, -50
	second, err := runner.Run(context.Background(), sst, depth, zones, deep)
	require.NoError(t, err)
	assert.Equal(t, [][]bool{{false, true}, {false, false}}, suitableCells(second.Mask))
	assert.InDelta(t, 100, second.Results()[0].SuitableAreaKM2, 1e-9)

	again, err := runner.Run(context.Background(), sst, depth, zones, baseCriteria)
	require.NoError(t, err)
	assert.Equal(t, suitableCells(first.Mask), suitableCells(again.Mask))
	assert.Equal(t, first.Results(), again.Results())

	// Outputs are independent values.
	assert.NotSame(t, first.Mask, again.Mask)
	first.Mask.Set(1, 0, math.NaN())
	assert.Equal(t, reclass.Suitable, again.Mask.At(1, 0))

	assert.Equal(t, sstBefore, sst.Rows())
	assert.Equal(t, depthBefore, depth.Rows())
}

func TestRun_CRSMismatchReportsGridPair(t *testing.T) {
	sst := grid(t, [][]float64{{20, 20}, {20, 20}})
	depth, err := raster.New([][]float64{{-5, -5}, {-5, -5}}, tenKM, "EPSG:3857", -9999)
	require.NoError(t, err)

	_, err = NewRunner(Options{}).Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.Error(t, err)

	var ae *raster.AlignmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, CriterionDepth, ae.Target)
	assert.Equal(t, CriterionSST, ae.Reference)
	assert.ErrorIs(t, err, raster.ErrCRSMismatch)
}

func TestRun_InvalidCriteria(t *testing.T) {
	sst := grid(t, [][]float64{{20}})
	bad := baseCriteria
	bad.MinTemp, bad.MaxTemp = 30, 11

	_, err := NewRunner(Options{}).Run(context.Background(), sst, sst, nil, bad)
	assert.ErrorIs(t, err, reclass.ErrInvalidRule)
}

func TestRun_MissingGrid(t *testing.T) {
	_, err := NewRunner(Options{}).Run(context.Background(), nil, nil, nil, baseCriteria)
	assert.Error(t, err)
}

func TestRun_ZoneMissingTotalAreaDoesNotAbort(t *testing.T) {
	sst := grid(t, [][]float64{{20, 20}, {20, 20}})
	depth := grid(t, [][]float64{{-5, -5}, {-5, -5}})
	zones := []zonal.Zone{
		{ID: "unknown", Geometry: zonal.Rect(0, 0, 10000, 20000)},
		zonal.NewZone("known", 200, zonal.Rect(10000, 0, 20000, 20000)),
	}

	out, err := NewRunner(Options{}).Run(context.Background(), sst, depth, zones, baseCriteria)
	require.NoError(t, err)
	require.Len(t, out.Results(), 1)
	assert.Equal(t, "known", out.Results()[0].ZoneID)
	require.Len(t, out.Report.Failures, 1)
	assert.Equal(t, "unknown", out.Report.Failures[0].ZoneID)
	require.Len(t, out.Report.Skipped, 1)
	assert.Equal(t, zonal.Skipped{ZoneID: "unknown", SuitableAreaKM2: 200, Flag: zonal.FlagMissingTotal, Reason: "total_area_km2 is missing"}, out.Report.Skipped[0])
}

func TestRun_ExplicitAreaModel(t *testing.T) {
	sst := grid(t, [][]float64{{20, 20}, {20, 20}})
	depth := grid(t, [][]float64{{-5, -5}, {-5, -5}})

	out, err := NewRunner(Options{AreaModel: zonal.Planar{UnitMeters: 0.001}}).Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.NoError(t, err)
	// Units declared as millimetres shrink each cell to 1e-4 km².
	assert.InDelta(t, 4e-4, out.Results()[0].SuitableAreaKM2, 1e-12)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := monitoring.NewMetricsForTesting()
	runner := NewRunner(Options{Metrics: m})
	sst := grid(t, [][]float64{{20, 20}, {20, 20}})
	depth := grid(t, [][]float64{{-5, -5}, {-5, -500}})

	_, err := runner.Run(context.Background(), sst, depth, wholeGridZone(400), baseCriteria)
	require.NoError(t, err)

	bad := baseCriteria
	bad.MinDepth = 10
	_, err = runner.Run(context.Background(), sst, depth, wholeGridZone(400), bad)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CellsProcessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SuitableCells))
}

func TestRunProfiles_MatchesSequentialRuns(t *testing.T) {
	sst := grid(t, [][]float64{{10, 12}, {25, 31}})
	depth := grid(t, [][]float64{{-5, -60}, {-10, -80}})
	zones := wholeGridZone(400)
	profiles := []Criteria{
		baseCriteria,
		{SpeciesLabel: "warm", MinTemp: 20, MaxTemp: 35, MinDepth: -100, MaxDepth: 0},
		{SpeciesLabel: "cold", MinTemp: 0, MaxTemp: 11, MinDepth: -10, MaxDepth: 0},
	}
	runner := NewRunner(Options{})

	outs, err := runner.RunProfiles(context.Background(), sst, depth, zones, profiles, 3)
	require.NoError(t, err)
	require.Len(t, outs, len(profiles))

	for i, p := range profiles {
		want, err := runner.Run(context.Background(), sst, depth, zones, p)
		require.NoError(t, err)
		assert.Equal(t, p.SpeciesLabel, outs[i].SpeciesLabel)
		assert.Equal(t, suitableCells(want.Mask), suitableCells(outs[i].Mask), p.SpeciesLabel)
		assert.Equal(t, want.Results(), outs[i].Results(), p.SpeciesLabel)
	}
}

func TestRunProfiles_FailureNamesSpecies(t *testing.T) {
	sst := grid(t, [][]float64{{20}})
	profiles := []Criteria{
		baseCriteria,
		{SpeciesLabel: "broken", MinTemp: 5, MaxTemp: 1},
	}

	_, err := NewRunner(Options{}).RunProfiles(context.Background(), sst, sst, nil, profiles, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCombineRejectsUnalignedMasks(t *testing.T) {
	// Guards the ordering the pipeline relies on: masks built on different
	// lattices cannot be combined without alignment.
	a := grid(t, [][]float64{{1, 1}, {1, 1}})
	b, err := raster.New([][]float64{{1}}, tenKM, utm, -9999)
	require.NoError(t, err)

	_, err = mapalgebra.Combine(context.Background(), 1, a, b)
	assert.ErrorIs(t, err, mapalgebra.ErrNonConformant)
}
