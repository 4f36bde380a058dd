// Package zoneload reads zone polygons from ESRI shapefiles.
package zoneload

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/zonal"
)

// Fields names the attribute columns holding each zone's identifier and
// total area in km². Matching is case-insensitive.
type Fields struct {
	ID   string
	Area string
}

// Load reads every polygon record of the shapefile at path. Records whose
// area attribute is blank or not a number get a nil TotalAreaKM2; the
// aggregator reports those zones instead of scoring them. Records with a
// null or non-polygon shape are skipped.
func Load(path string, fields Fields) ([]zonal.Zone, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zoneload: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := fieldIdx[strings.ToLower(fields.ID)]
	if !ok {
		return nil, eris.Errorf("zoneload: %s has no id field %q", path, fields.ID)
	}
	areaIdx, hasArea := fieldIdx[strings.ToLower(fields.Area)]
	if !hasArea {
		zap.L().Warn("zoneload: area field missing, no zone will be scored",
			zap.String("path", path),
			zap.String("field", fields.Area),
		)
	}

	var zones []zonal.Zone
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := toMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		id := attribute(reader, idIdx)
		if id == "" {
			return nil, eris.Errorf("zoneload: record %d has an empty %s", n, fields.ID)
		}
		z := zonal.Zone{ID: id, Geometry: mp}
		if hasArea {
			z.TotalAreaKM2 = parseArea(attribute(reader, areaIdx))
		}
		zones = append(zones, z)
	}

	if skipped > 0 {
		zap.L().Debug("zoneload: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(zones) == 0 {
		return nil, eris.Errorf("zoneload: %s holds no polygon zones", path)
	}
	return zones, nil
}

func attribute(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

func parseArea(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// toMultiPolygon groups shapefile rings into polygons. Clockwise rings are
// shells; counter-clockwise rings are holes of the shell containing them.
// A part list with no clockwise ring is read as shells only.
func toMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("zoneload: skipping degenerate ring", zap.Int32("part", i))
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, flat)
		} else {
			shells = append(shells, flat)
		}
	}
	if len(shells) == 0 {
		shells, holes = holes, nil
	}
	if len(shells) == 0 {
		return nil
	}

	rings := make([][][]float64, len(shells))
	for i, s := range shells {
		rings[i] = [][]float64{s}
	}
	for _, h := range holes {
		owner := len(shells) - 1
		first := geom.Coord{h[0], h[1]}
		for i, s := range shells {
			if xy.IsPointInRing(geom.XY, first, s) {
				owner = i
				break
			}
		}
		rings[owner] = append(rings[owner], h)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, rs := range rings {
		poly := geom.NewPolygon(geom.XY)
		for _, r := range rs {
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, r)); err != nil {
				zap.L().Debug("zoneload: skipping malformed ring", zap.Int("polygon", i), zap.Error(err))
			}
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("zoneload: skipping malformed polygon", zap.Int("polygon", i), zap.Error(err))
		}
	}
	return mp
}
