package zoneload

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/suitability-cli/internal/model"
	"github.com/sells-group/suitability-cli/internal/zonal"
)

// Catalog encodes zones as EWKB rows for the zone catalog. srid tags the
// geometry; 0 leaves it untagged.
func Catalog(zones []zonal.Zone, srid int) ([]model.Zone, error) {
	out := make([]model.Zone, 0, len(zones))
	for _, z := range zones {
		if z.Geometry == nil {
			return nil, eris.Errorf("zoneload: zone %q has no geometry", z.ID)
		}
		g := geom.T(z.Geometry)
		if srid != 0 {
			g = z.Geometry.Clone().SetSRID(srid)
		}
		data, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "zoneload: encode zone %q", z.ID)
		}
		out = append(out, model.Zone{ID: z.ID, TotalAreaKM2: z.TotalAreaKM2, Geometry: data})
	}
	return out, nil
}

// SRID extracts the numeric code from an "EPSG:nnnn" CRS string, or 0.
func SRID(crs string) int {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
