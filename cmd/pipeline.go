package main

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/config"
	"github.com/sells-group/suitability-cli/internal/gridio"
	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/monitoring"
	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/store"
	"github.com/sells-group/suitability-cli/internal/suitability"
	"github.com/sells-group/suitability-cli/internal/zonal"
	"github.com/sells-group/suitability-cli/internal/zoneload"
)

// processMetrics registers the Prometheus collectors on first use.
var processMetrics = sync.OnceValue(monitoring.NewMetrics)

// inputPaths locate the base grids and zone shapefile of a run.
type inputPaths struct {
	SST   string
	Depth string
	Zones string
}

// inputs are the loaded base layers, shared read-only by every species.
type inputs struct {
	Paths inputPaths
	SST   *raster.Grid
	Depth *raster.Grid
	Zones []zonal.Zone
}

// loadInputs reads both grids and the zones. Grids without a .prj sidecar
// take the configured CRS.
func loadInputs(paths inputPaths) (*inputs, error) {
	if paths.SST == "" || paths.Depth == "" || paths.Zones == "" {
		return nil, eris.New("--sst, --depth, and --zones are required")
	}
	sst, err := gridio.ReadFile(paths.SST, cfg.Pipeline.CRS, cfg.Pipeline.MaxGridCells)
	if err != nil {
		return nil, eris.Wrap(err, "load sst grid")
	}
	depth, err := gridio.ReadFile(paths.Depth, cfg.Pipeline.CRS, cfg.Pipeline.MaxGridCells)
	if err != nil {
		return nil, eris.Wrap(err, "load depth grid")
	}
	zones, err := zoneload.Load(paths.Zones, zoneload.Fields{ID: cfg.Zones.IDField, Area: cfg.Zones.AreaField})
	if err != nil {
		return nil, eris.Wrap(err, "load zones")
	}
	zap.L().Info("inputs loaded",
		zap.String("sst", paths.SST),
		zap.String("depth", paths.Depth),
		zap.Int("zones", len(zones)),
	)
	return &inputs{Paths: paths, SST: sst, Depth: depth, Zones: zones}, nil
}

// areaModel maps the configured model name. Nil selects by grid CRS.
func areaModel(pc config.PipelineConfig) zonal.AreaModel {
	switch pc.AreaModel {
	case "geodesic":
		return zonal.Geodesic{}
	case "planar":
		return zonal.Planar{UnitMeters: pc.PlanarUnitM}
	}
	return nil
}

func newRunner(metrics *monitoring.Metrics) *suitability.Runner {
	return suitability.NewRunner(suitability.Options{
		Workers:   cfg.Pipeline.Workers,
		AreaModel: areaModel(cfg.Pipeline),
		Metrics:   metrics,
	})
}

func criteriaFromConfig(c config.CriteriaConfig) suitability.Criteria {
	return suitability.Criteria{
		SpeciesLabel: c.SpeciesLabel,
		MinTemp:      c.MinTemp,
		MaxTemp:      c.MaxTemp,
		MinDepth:     c.MinDepth,
		MaxDepth:     c.MaxDepth,
	}
}

// newRunRecord describes a run about to start. The store assigns its id.
func newRunRecord(in *inputs, c suitability.Criteria) model.Run {
	modelName := cfg.Pipeline.AreaModel
	if modelName == "auto" || modelName == "" {
		modelName = zonal.AreaModelFor(in.SST.CRS).Name()
	}
	return model.Run{
		SpeciesLabel: c.SpeciesLabel,
		Thresholds: model.Thresholds{
			MinTemp:  c.MinTemp,
			MaxTemp:  c.MaxTemp,
			MinDepth: c.MinDepth,
			MaxDepth: c.MaxDepth,
		},
		Inputs: model.RunInputs{
			SSTPath:   in.Paths.SST,
			DepthPath: in.Paths.Depth,
			ZonesPath: in.Paths.Zones,
			CRS:       in.SST.CRS,
			AreaModel: modelName,
		},
		Status: model.RunStatusRunning,
	}
}

// executeRun evaluates one species and records it in st. A nil st skips
// persistence. The returned run is nil when nothing was stored.
func executeRun(ctx context.Context, st store.Store, runner *suitability.Runner, in *inputs, c suitability.Criteria) (*suitability.Output, *model.Run, error) {
	var run *model.Run
	if st != nil {
		created, err := st.CreateRun(ctx, newRunRecord(in, c))
		if err != nil {
			return nil, nil, eris.Wrap(err, "create run")
		}
		run = created
	}

	start := time.Now()
	out, runErr := runner.Run(ctx, in.SST, in.Depth, in.Zones, c)
	if run == nil {
		return out, nil, runErr
	}

	var rep *zonal.Report
	if out != nil {
		rep = out.Report
	}
	if err := store.Finish(context.WithoutCancel(ctx), st, run.ID, rep, time.Since(start), runErr); err != nil {
		zap.L().Error("record run outcome failed", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			return nil, run, eris.Wrap(err, "record run")
		}
	}
	return out, run, runErr
}

// executeBatch evaluates every profile against the same inputs. Runs are
// created up front so a failed batch leaves each one marked failed.
func executeBatch(ctx context.Context, st store.Store, runner *suitability.Runner, in *inputs, profiles []suitability.Criteria, concurrency int) ([]*suitability.Output, []*model.Run, error) {
	runs := make([]*model.Run, len(profiles))
	if st != nil {
		for i, c := range profiles {
			created, err := st.CreateRun(ctx, newRunRecord(in, c))
			if err != nil {
				return nil, nil, eris.Wrapf(err, "create run for %s", c.SpeciesLabel)
			}
			runs[i] = created
		}
	}

	outs, batchErr := runner.RunProfiles(ctx, in.SST, in.Depth, in.Zones, profiles, concurrency)
	if st == nil {
		return outs, nil, batchErr
	}

	for i, run := range runs {
		var (
			rep     *zonal.Report
			elapsed time.Duration
		)
		if batchErr == nil {
			rep, elapsed = outs[i].Report, outs[i].Duration
		}
		if err := store.Finish(context.WithoutCancel(ctx), st, run.ID, rep, elapsed, batchErr); err != nil {
			zap.L().Error("record run outcome failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return outs, runs, batchErr
}
