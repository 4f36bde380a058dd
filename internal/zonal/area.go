package zonal

import (
	"math"
	"strings"

	"github.com/sells-group/suitability-cli/internal/raster"
)

// WGS84 ellipsoid.
const (
	wgs84SemiMajorKM  = 6378.137
	wgs84Eccentricity = 0.0818191908426215 // sqrt(f*(2-f)), f = 1/298.257223563
)

// AreaModel returns the area in km² of the cells of one grid row. Cell area
// on a north-up grid varies only with latitude, so per-row is enough.
type AreaModel interface {
	Name() string
	RowAreaKM2(g *raster.Grid, row int) float64
}

// Geodesic computes exact cell areas on the WGS84 ellipsoid for grids in
// geographic (degree) coordinates, accounting for cells shrinking toward
// the poles.
type Geodesic struct{}

func (Geodesic) Name() string { return "geodesic" }

// RowAreaKM2 integrates the ellipsoid surface between the row's bounding
// parallels over the cell's longitude span.
func (Geodesic) RowAreaKM2(g *raster.Grid, row int) float64 {
	t := g.Transform
	lat0 := clampLat(t.OriginY + float64(row)*t.CellHeight)
	lat1 := clampLat(t.OriginY + float64(row+1)*t.CellHeight)
	dLon := math.Abs(t.CellWidth) * math.Pi / 180

	q0 := authalicQ(lat0 * math.Pi / 180)
	q1 := authalicQ(lat1 * math.Pi / 180)
	return wgs84SemiMajorKM * wgs84SemiMajorKM / 2 * dLon * math.Abs(q1-q0)
}

// authalicQ is Snyder's q(φ) for the WGS84 ellipsoid; the area of the band
// between two parallels over Δλ radians is a²/2 · Δλ · |q₂ − q₁|.
func authalicQ(phi float64) float64 {
	e := wgs84Eccentricity
	s := math.Sin(phi)
	es := e * s
	return (1 - e*e) * (s/(1-es*es) - 1/(2*e)*math.Log((1-es)/(1+es)))
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// Planar computes cell areas for projected grids whose map units are
// UnitMeters long (1 for metre-based projections).
type Planar struct {
	UnitMeters float64
}

func (Planar) Name() string { return "planar" }

func (p Planar) RowAreaKM2(g *raster.Grid, _ int) float64 {
	unit := p.UnitMeters
	if unit == 0 {
		unit = 1
	}
	w := math.Abs(g.Transform.CellWidth) * unit
	h := math.Abs(g.Transform.CellHeight) * unit
	return w * h / 1e6
}

var geographicCRS = map[string]bool{
	"EPSG:4326": true,
	"EPSG:4269": true,
	"EPSG:4258": true,
	"EPSG:4283": true,
	"EPSG:4167": true,
	"OGC:CRS84": true,
	"CRS:84":    true,
	"WGS84":     true,
}

// AreaModelFor picks Geodesic for geographic CRS identifiers and Planar
// (metres) for everything else.
func AreaModelFor(crs string) AreaModel {
	id := strings.ToUpper(strings.TrimSpace(crs))
	if geographicCRS[id] || strings.Contains(id, "+PROJ=LONGLAT") || strings.Contains(id, "+PROJ=LATLONG") {
		return Geodesic{}
	}
	return Planar{UnitMeters: 1}
}

// RowAreas returns the per-row cell areas of g under m.
func RowAreas(g *raster.Grid, m AreaModel) []float64 {
	areas := make([]float64, g.Height)
	for r := range areas {
		areas[r] = m.RowAreaKM2(g, r)
	}
	return areas
}
