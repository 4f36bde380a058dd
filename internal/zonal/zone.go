// Package zonal rasterizes polygon zones onto a grid and aggregates
// suitable area per zone.
package zonal

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// FieldTotalArea is the zone attribute the percentage join depends on.
const FieldTotalArea = "total_area_km2"

// ErrUnknownZoneField marks a zone missing an attribute the aggregation needs.
var ErrUnknownZoneField = eris.New("zonal: unknown zone field")

// ZoneAttributeError fails one zone's aggregation without aborting the others.
type ZoneAttributeError struct {
	ZoneID string
	Field  string
	Reason string
	Flag   Flag
}

func (e *ZoneAttributeError) Error() string {
	return fmt.Sprintf("zonal: zone %q: %s %s", e.ZoneID, e.Field, e.Reason)
}

func (e *ZoneAttributeError) Unwrap() error { return ErrUnknownZoneField }

// Zone is a polygon region with a caller-supplied total area. TotalAreaKM2
// is nil when the source had no usable total-area attribute. Geometry
// coordinates are in the same CRS as the grids it is rasterized against.
type Zone struct {
	ID           string             `json:"id"`
	TotalAreaKM2 *float64           `json:"total_area_km2"`
	Geometry     *geom.MultiPolygon `json:"-"`
}

// NewZone builds a zone with a known total area.
func NewZone(id string, totalAreaKM2 float64, g *geom.MultiPolygon) Zone {
	return Zone{ID: id, TotalAreaKM2: &totalAreaKM2, Geometry: g}
}

// validateZones checks ids are present and unique and every zone has a
// geometry.
func validateZones(zones []Zone) error {
	seen := make(map[string]bool, len(zones))
	for i, z := range zones {
		if z.ID == "" {
			return eris.Errorf("zonal: zone %d has empty id", i)
		}
		if seen[z.ID] {
			return eris.Errorf("zonal: duplicate zone id %q", z.ID)
		}
		seen[z.ID] = true
		if z.Geometry == nil {
			return eris.Errorf("zonal: zone %q has no geometry", z.ID)
		}
	}
	return nil
}

// Rect returns a single-polygon zone geometry covering the axis-aligned box.
// It is mostly useful for tests and for whole-grid zones.
func Rect(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(poly)
	return mp
}
