package suitability

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/suitability-cli/internal/mapalgebra"
	"github.com/sells-group/suitability-cli/internal/monitoring"
	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/reclass"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

// Options configure a Runner. The zero value is usable.
type Options struct {
	// Workers bounds row-band parallelism inside each stage; 0 means GOMAXPROCS.
	Workers int
	// AreaModel overrides the cell-area model. Nil picks one from the SST
	// grid's CRS.
	AreaModel zonal.AreaModel
	// Metrics is optional.
	Metrics *monitoring.Metrics
}

// Output is everything one invocation produces. Nothing in it is shared
// with any other invocation.
type Output struct {
	SpeciesLabel string        `json:"species_label"`
	Criteria     Criteria      `json:"criteria"`
	Mask         *raster.Grid  `json:"-"`
	Report       *zonal.Report `json:"report"`
	Duration     time.Duration `json:"duration"`
}

// Results is shorthand for o.Report.Results.
func (o *Output) Results() []zonal.Result {
	return o.Report.Results
}

// Runner executes the pipeline. It holds configuration only; Run is safe
// for concurrent use and never retains grids, masks, or results between
// calls.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run scores zones for one set of criteria. The depth grid is aligned onto
// the SST grid, both are reclassified from this call's thresholds, the
// masks are combined, and suitable area is aggregated per zone. Inputs are
// never mutated.
func (r *Runner) Run(ctx context.Context, sst, depth *raster.Grid, zones []zonal.Zone, c Criteria) (*Output, error) {
	start := time.Now()
	out, err := r.run(ctx, sst, depth, zones, c)
	r.observeRun(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)

	zap.L().Info("suitability: run complete",
		zap.String("species", c.SpeciesLabel),
		zap.Int("zones", len(out.Report.Results)),
		zap.Int("zones_failed", len(out.Report.Failures)),
		zap.Int("suitable_cells", out.Report.SuitableCells),
		zap.Float64("suitable_km2", out.Report.MaskSuitableKM2),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

func (r *Runner) run(ctx context.Context, sst, depth *raster.Grid, zones []zonal.Zone, c Criteria) (*Output, error) {
	if sst == nil || depth == nil {
		return nil, eris.New("suitability: sst and depth grids are required")
	}
	if err := c.Validate(); err != nil {
		return nil, eris.Wrapf(err, "suitability: criteria for %q", c.SpeciesLabel)
	}

	// SST is the reference: it is the costlier multi-year composite, so
	// depth is brought onto its lattice instead of the other way round.
	var alignedDepth *raster.Grid
	err := r.stage("align", func() error {
		var err error
		alignedDepth, err = raster.Align(depth, sst, CriterionDepth, CriterionSST)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "suitability: align")
	}

	// Both masks are derived from this call's thresholds on every call.
	var sstMask, depthMask *raster.Grid
	err = r.stage("reclassify", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			sstMask, err = reclass.ClassifyCriterion(gctx, sst, c.SST(), r.opts.Workers)
			return err
		})
		g.Go(func() error {
			var err error
			depthMask, err = reclass.ClassifyCriterion(gctx, alignedDepth, c.Depth(), r.opts.Workers)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, eris.Wrap(err, "suitability: reclassify")
	}

	var mask *raster.Grid
	err = r.stage("combine", func() error {
		var err error
		mask, err = mapalgebra.Combine(ctx, r.opts.Workers, sstMask, depthMask)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "suitability: combine")
	}

	var zr *zonal.ZoneRaster
	err = r.stage("rasterize", func() error {
		var err error
		zr, err = zonal.Rasterize(ctx, zones, mask, r.opts.Workers)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "suitability: rasterize zones")
	}

	model := r.opts.AreaModel
	if model == nil {
		model = zonal.AreaModelFor(sst.CRS)
	}
	var rep *zonal.Report
	err = r.stage("aggregate", func() error {
		var err error
		rep, err = zonal.Aggregate(ctx, mask, zr, zones, model, r.opts.Workers)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "suitability: aggregate")
	}

	if m := r.opts.Metrics; m != nil {
		m.CellsProcessed.Add(float64(mask.Width * mask.Height))
		m.SuitableCells.Add(float64(rep.SuitableCells))
		m.ZonesSkipped.Add(float64(len(rep.Failures)))
	}

	return &Output{
		SpeciesLabel: c.SpeciesLabel,
		Criteria:     c,
		Mask:         mask,
		Report:       rep,
	}, nil
}

// RunProfiles evaluates every criteria set against the same base grids,
// up to concurrency at a time. Outputs are returned in input order. Each
// invocation is independent; the first failure cancels the rest.
func (r *Runner) RunProfiles(ctx context.Context, sst, depth *raster.Grid, zones []zonal.Zone, profiles []Criteria, concurrency int) ([]*Output, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	outputs := make([]*Output, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range profiles {
		g.Go(func() error {
			out, err := r.Run(gctx, sst, depth, zones, c)
			if err != nil {
				return eris.Wrapf(err, "suitability: species %q", c.SpeciesLabel)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (r *Runner) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if m := r.opts.Metrics; m != nil {
		m.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	zap.L().Debug("suitability: stage finished", zap.String("stage", name), zap.Duration("elapsed", elapsed), zap.Bool("ok", err == nil))
	return err
}

func (r *Runner) observeRun(err error, elapsed time.Duration) {
	m := r.opts.Metrics
	if m == nil {
		return
	}
	outcome := "complete"
	if err != nil {
		outcome = "failed"
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
