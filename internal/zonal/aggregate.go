package zonal

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/mapalgebra"
	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/reclass"
)

// Flag classifies the data quality of a zone's percentage.
type Flag string

const (
	// FlagOK means pct_suitable is within [0, 100].
	FlagOK Flag = "ok"
	// FlagZeroTotal means total_area_km2 is zero and pct_suitable is undefined.
	FlagZeroTotal Flag = "zero_total"
	// FlagExceedsTotal means suitable area is larger than the zone's total
	// area, usually because the total was computed under another projection.
	FlagExceedsTotal Flag = "exceeds_total"
	// FlagMissingTotal marks a skipped zone whose total area was absent.
	FlagMissingTotal Flag = "missing_total"
	// FlagInvalidTotal marks a skipped zone whose total area was negative or
	// not finite.
	FlagInvalidTotal Flag = "invalid_total"
)

// Result is one row of the per-zone result table. PctSuitable is nil when
// the percentage is undefined.
type Result struct {
	ZoneID          string   `json:"zone_id"`
	SuitableAreaKM2 float64  `json:"suitable_area_km2"`
	TotalAreaKM2    float64  `json:"total_area_km2"`
	PctSuitable     *float64 `json:"pct_suitable"`
	Flag            Flag     `json:"flag"`
}

// Skipped is a zone left out of the result table. SuitableAreaKM2 is still
// the zone's suitable area; only the percentage could not be computed.
type Skipped struct {
	ZoneID          string  `json:"zone_id"`
	SuitableAreaKM2 float64 `json:"suitable_area_km2"`
	Flag            Flag    `json:"flag"`
	Reason          string  `json:"reason"`
}

// Report is the output of Aggregate. Results are in zone input order and
// exclude zones listed in Failures. Skipped mirrors Failures in the same
// order.
type Report struct {
	Results            []Result              `json:"results"`
	Failures           []*ZoneAttributeError `json:"-"`
	Skipped            []Skipped             `json:"skipped,omitempty"`
	SuitableCells      int                   `json:"suitable_cells"`
	MaskSuitableKM2    float64               `json:"mask_suitable_km2"`
	ZonedSuitableKM2   float64               `json:"zoned_suitable_km2"`
	UnzonedSuitableKM2 float64               `json:"unzoned_suitable_km2"`
}

// partial is one band's contribution to the reduce.
type partial struct {
	perZone []float64
	unzoned float64
	cells   int
}

// Aggregate sums the area of Suitable mask cells per zone and joins the
// sums against each zone's total area. Cells outside every zone count
// toward UnzonedSuitableKM2 only. A zone without a usable total area is
// reported in Failures and does not abort the others.
func Aggregate(ctx context.Context, mask *raster.Grid, zr *ZoneRaster, zones []Zone, model AreaModel, workers int) (*Report, error) {
	if !mask.Conformant(zr.Grid) {
		return nil, eris.Wrap(&mapalgebra.ConformanceError{Index: 1}, "zonal: zone raster does not match mask")
	}
	if len(zones) != len(zr.IDs) {
		return nil, eris.Errorf("zonal: %d zones but zone raster has %d", len(zones), len(zr.IDs))
	}

	rowArea := RowAreas(mask, model)
	bands := raster.Bands(mask.Height, workers)
	partials := make([]partial, len(bands))

	err := raster.ForEachBand(ctx, mask.Height, workers, func(_ context.Context, b raster.Band) error {
		p := partial{perZone: make([]float64, len(zones))}
		for r := b.Start; r < b.End; r++ {
			for c := 0; c < mask.Width; c++ {
				if mask.At(r, c) != reclass.Suitable {
					continue
				}
				p.cells++
				if zi, ok := zr.ZoneAt(r, c); ok {
					p.perZone[zi] += rowArea[r]
				} else {
					p.unzoned += rowArea[r]
				}
			}
		}
		partials[b.Index] = p
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "zonal: aggregate")
	}

	// Merge in band order so the floating-point sum is deterministic.
	sums := make([]float64, len(zones))
	rep := &Report{}
	for _, p := range partials {
		for i, v := range p.perZone {
			sums[i] += v
		}
		rep.UnzonedSuitableKM2 += p.unzoned
		rep.SuitableCells += p.cells
	}
	for _, v := range sums {
		rep.ZonedSuitableKM2 += v
	}
	rep.MaskSuitableKM2 = rep.ZonedSuitableKM2 + rep.UnzonedSuitableKM2

	log := zap.L().With(zap.String("component", "zonal.aggregate"))
	for i, z := range zones {
		res, ferr := join(z, sums[i])
		if ferr != nil {
			log.Warn("zonal: skipping zone", zap.String("zone_id", z.ID), zap.Error(ferr))
			rep.Failures = append(rep.Failures, ferr)
			rep.Skipped = append(rep.Skipped, Skipped{
				ZoneID:          z.ID,
				SuitableAreaKM2: sums[i],
				Flag:            ferr.Flag,
				Reason:          ferr.Field + " " + ferr.Reason,
			})
			continue
		}
		if res.Flag == FlagExceedsTotal {
			log.Warn("zonal: suitable area exceeds zone total",
				zap.String("zone_id", z.ID),
				zap.Float64("suitable_area_km2", res.SuitableAreaKM2),
				zap.Float64("total_area_km2", res.TotalAreaKM2),
			)
		}
		rep.Results = append(rep.Results, res)
	}
	return rep, nil
}

// join computes the percentage for one zone.
func join(z Zone, suitable float64) (Result, *ZoneAttributeError) {
	if z.TotalAreaKM2 == nil {
		return Result{}, &ZoneAttributeError{ZoneID: z.ID, Field: FieldTotalArea, Reason: "is missing", Flag: FlagMissingTotal}
	}
	total := *z.TotalAreaKM2
	if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
		return Result{}, &ZoneAttributeError{ZoneID: z.ID, Field: FieldTotalArea, Reason: "is not a finite non-negative number", Flag: FlagInvalidTotal}
	}

	res := Result{ZoneID: z.ID, SuitableAreaKM2: suitable, TotalAreaKM2: total, Flag: FlagOK}
	if total == 0 {
		res.Flag = FlagZeroTotal
		return res, nil
	}
	pct := 100 * suitable / total
	res.PctSuitable = &pct
	if pct > 100 {
		res.Flag = FlagExceedsTotal
	}
	return res, nil
}
