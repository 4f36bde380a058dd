package reclass

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/suitability-cli/internal/raster"
)

// Suitable is the mask value for cells meeting every criterion applied so far.
const Suitable = 1.0

// MaskNodata is the missing-value marker of every mask this package emits.
var MaskNodata = math.NaN()

// Classify maps every cell of g through rule and returns a new mask grid
// conformant with g holding Suitable or MaskNodata. Cells that are nodata
// in g stay nodata. workers bounds the number of row bands processed in
// parallel; zero means GOMAXPROCS.
func Classify(ctx context.Context, g *raster.Grid, rule Rule, workers int) (*raster.Grid, error) {
	if err := rule.Validate(); err != nil {
		return nil, eris.Wrapf(err, "reclass: classify %q", rule.Name)
	}

	out := g.Like(MaskNodata)
	err := raster.ForEachBand(ctx, g.Height, workers, func(_ context.Context, b raster.Band) error {
		for r := b.Start; r < b.End; r++ {
			for c := 0; c < g.Width; c++ {
				v := g.At(r, c)
				if g.IsNodata(v) {
					continue
				}
				if iv, ok := rule.Match(v); ok && iv.Suitable {
					out.Set(r, c, Suitable)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reclass: classify %q", rule.Name)
	}
	return out, nil
}

// ClassifyCriterion is Classify with the rule derived from c.
func ClassifyCriterion(ctx context.Context, g *raster.Grid, c Criterion, workers int) (*raster.Grid, error) {
	rule, err := RuleFor(c)
	if err != nil {
		return nil, err
	}
	return Classify(ctx, g, rule, workers)
}
