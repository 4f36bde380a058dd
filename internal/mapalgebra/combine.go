// Package mapalgebra fuses binary suitability masks cell by cell.
package mapalgebra

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/reclass"
)

// ErrNonConformant marks an attempt to combine grids that were not aligned
// first. It always indicates a pipeline ordering bug.
var ErrNonConformant = eris.New("mapalgebra: non-conformant inputs")

// ConformanceError identifies the first mask that does not match masks[0].
type ConformanceError struct {
	Index int
}

func (e *ConformanceError) Error() string {
	return fmt.Sprintf("mapalgebra: mask %d is not conformant with mask 0", e.Index)
}

func (e *ConformanceError) Unwrap() error { return ErrNonConformant }

// Combine returns a mask that is Suitable exactly where every input mask
// is Suitable and nodata everywhere else. Nodata, or any value other than
// Suitable, is absorbing.
func Combine(ctx context.Context, workers int, masks ...*raster.Grid) (*raster.Grid, error) {
	if len(masks) == 0 {
		return nil, eris.New("mapalgebra: combine needs at least one mask")
	}
	for i := 1; i < len(masks); i++ {
		if !masks[0].Conformant(masks[i]) {
			return nil, &ConformanceError{Index: i}
		}
	}

	ref := masks[0]
	out := ref.Like(reclass.MaskNodata)
	err := raster.ForEachBand(ctx, ref.Height, workers, func(_ context.Context, b raster.Band) error {
		for r := b.Start; r < b.End; r++ {
		cells:
			for c := 0; c < ref.Width; c++ {
				for _, m := range masks {
					if !suitable(m, m.At(r, c)) {
						continue cells
					}
				}
				out.Set(r, c, reclass.Suitable)
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "mapalgebra: combine")
	}
	return out, nil
}

// CountSuitable returns the number of Suitable cells in mask.
func CountSuitable(mask *raster.Grid) int {
	n := 0
	for r := 0; r < mask.Height; r++ {
		for c := 0; c < mask.Width; c++ {
			if suitable(mask, mask.At(r, c)) {
				n++
			}
		}
	}
	return n
}

// suitable reports whether v is Suitable and not m's nodata value, so a mask
// declaring Suitable as its nodata sentinel never counts.
func suitable(m *raster.Grid, v float64) bool {
	return v == reclass.Suitable && !m.IsNodata(v)
}
