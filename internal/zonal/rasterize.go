package zonal

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/suitability-cli/internal/raster"
)

// ZoneRaster is a grid whose cells hold the input-order index of the zone
// covering their centroid, or NaN when uncovered.
type ZoneRaster struct {
	Grid *raster.Grid
	IDs  []string
}

// ZoneAt returns the index of the zone covering (row, col).
func (z *ZoneRaster) ZoneAt(row, col int) (int, bool) {
	v := z.Grid.At(row, col)
	if math.IsNaN(v) {
		return 0, false
	}
	return int(v), true
}

// Rasterize burns every zone into a grid conformant with like. A cell
// belongs to a zone when its centroid lies inside or on the zone boundary.
// When zones overlap, the zone later in input order wins.
func Rasterize(ctx context.Context, zones []Zone, like *raster.Grid, workers int) (*ZoneRaster, error) {
	if err := validateZones(zones); err != nil {
		return nil, err
	}

	out := like.Like(math.NaN())
	ids := make([]string, len(zones))
	windows := make([]window, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
		windows[i] = cellWindow(like, z.Geometry.Bounds())
	}

	// Each band walks zones in input order so later zones overwrite earlier
	// ones within the band's rows.
	err := raster.ForEachBand(ctx, like.Height, workers, func(_ context.Context, b raster.Band) error {
		for i, z := range zones {
			w := windows[i]
			r0, r1 := max(w.r0, b.Start), min(w.r1, b.End)
			for r := r0; r < r1; r++ {
				for c := w.c0; c < w.c1; c++ {
					x, y := like.Transform.CellCenter(r, c)
					if covers(z.Geometry, x, y) {
						out.Set(r, c, float64(i))
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "zonal: rasterize")
	}
	return &ZoneRaster{Grid: out, IDs: ids}, nil
}

type window struct{ r0, r1, c0, c1 int }

// cellWindow returns the clamped row/col range whose cells can have a
// centroid inside bounds.
func cellWindow(g *raster.Grid, b *geom.Bounds) window {
	if b.IsEmpty() {
		return window{}
	}
	ra, ca := g.Transform.CellIndex(b.Min(0), b.Min(1))
	rb, cb := g.Transform.CellIndex(b.Max(0), b.Max(1))
	return window{
		r0: max(min(ra, rb), 0),
		r1: min(max(ra, rb)+1, g.Height),
		c0: max(min(ca, cb), 0),
		c1: min(max(ca, cb)+1, g.Width),
	}
}

// covers reports whether (x, y) lies in any polygon of mp: inside or on the
// shell and not inside one of its holes.
func covers(mp *geom.MultiPolygon, x, y float64) bool {
	p := geom.Coord{x, y}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for h := 1; h < poly.NumLinearRings(); h++ {
			if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(h).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
