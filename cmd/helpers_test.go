package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/suitability-cli/internal/config"
	"github.com/sells-group/suitability-cli/internal/gridio"
	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/store"
)

// useTestConfig installs a config backed by a throwaway SQLite database.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{
		Log:      config.LogConfig{Level: "info", Format: "json"},
		Pipeline: config.PipelineConfig{Workers: 1, Concurrency: 2, AreaModel: "auto", PlanarUnitM: 1, CRS: "EPSG:32630"},
		Criteria: config.CriteriaConfig{SpeciesLabel: "oyster", MinTemp: 11, MaxTemp: 30, MinDepth: -70, MaxDepth: 0},
		Zones:    config.ZonesConfig{IDField: "ZONE_ID", AreaField: "AREA_KM2"},
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "test.db")},
		Server:   config.ServerConfig{Port: 8080},
		Export:   config.ExportConfig{Format: "csv"},
		Monitoring: config.MonitoringConfig{
			FailureRateThreshold:  0.25,
			ZonesSkippedThreshold: 0.1,
			LookbackWindowHours:   24,
		},
	}
	return cfg
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// tenKM lays out 2x2 grids of 10 km cells; every cell is 100 km².
var tenKM = raster.Transform{OriginX: 0, CellWidth: 10000, OriginY: 20000, CellHeight: -10000}

// writeFixtures writes an SST grid, a depth grid, and a single zone
// covering both, returning their paths.
func writeFixtures(t *testing.T) inputPaths {
	t.Helper()
	dir := t.TempDir()

	write := func(name string, rows [][]float64) string {
		g, err := raster.New(rows, tenKM, "EPSG:32630", -9999)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, gridio.WriteFile(path, g))
		return path
	}
	paths := inputPaths{
		SST:   write("sst.asc", [][]float64{{10, 12}, {25, 31}}),
		Depth: write("depth.asc", [][]float64{{-5, -60}, {-10, -80}}),
		Zones: filepath.Join(dir, "zones.shp"),
	}

	w, err := shp.Create(paths.Zones, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ZONE_ID", 20),
		shp.StringField("AREA_KM2", 20),
	}))
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: 0, Y: 0}, {X: 0, Y: 20000}, {X: 20000, Y: 20000}, {X: 20000, Y: 0}, {X: 0, Y: 0},
	}}))
	n := int(w.Write(&poly))
	require.NoError(t, w.WriteAttribute(n, 0, "bay-1"))
	require.NoError(t, w.WriteAttribute(n, 1, "400"))
	w.Close()
	// go-shp v0.1.1 names the attribute table "<base>dbf"; the reader wants "<base>.dbf".
	base := strings.TrimSuffix(paths.Zones, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))

	return paths
}
