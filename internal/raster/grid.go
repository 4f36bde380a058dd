// Package raster provides regular georeferenced grids and the operations
// that align them onto a common cell layout.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// transformTolerance bounds float drift when comparing transforms produced
// by different decoders for the same cell layout.
const transformTolerance = 1e-9

// Transform is a north-up affine transform. OriginX/OriginY locate the
// outer corner of cell (0,0); CellHeight is negative for the usual
// top-down row order.
type Transform struct {
	OriginX    float64 `json:"origin_x"`
	CellWidth  float64 `json:"cell_width"`
	OriginY    float64 `json:"origin_y"`
	CellHeight float64 `json:"cell_height"`
}

// Equal reports whether two transforms describe the same cell layout.
func (t Transform) Equal(o Transform) bool {
	return nearlyEqual(t.OriginX, o.OriginX) &&
		nearlyEqual(t.OriginY, o.OriginY) &&
		nearlyEqual(t.CellWidth, o.CellWidth) &&
		nearlyEqual(t.CellHeight, o.CellHeight)
}

// CellCenter returns the map coordinate of the center of (row, col).
func (t Transform) CellCenter(row, col int) (x, y float64) {
	x = t.OriginX + (float64(col)+0.5)*t.CellWidth
	y = t.OriginY + (float64(row)+0.5)*t.CellHeight
	return x, y
}

// CellIndex returns the (row, col) of the cell containing the map
// coordinate. The result may lie outside any particular grid.
func (t Transform) CellIndex(x, y float64) (row, col int) {
	col = int(math.Floor((x - t.OriginX) / t.CellWidth))
	row = int(math.Floor((y - t.OriginY) / t.CellHeight))
	return row, col
}

func nearlyEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= transformTolerance*scale
}

// Extent is an axis-aligned bounding box in map units.
type Extent struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Intersects reports whether the two extents share a region of positive area.
// Extents that only touch along an edge do not intersect.
func (e Extent) Intersects(o Extent) bool {
	return e.MinX < o.MaxX && o.MinX < e.MaxX && e.MinY < o.MaxY && o.MinY < e.MaxY
}

// Grid is a regular 2D numeric field. Cells are stored row-major, row 0
// first. Grids are treated as immutable once built; every operation in this
// module allocates a new Grid.
type Grid struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Transform Transform `json:"transform"`
	CRS       string    `json:"crs"`
	Nodata    float64   `json:"nodata"`
	cells     []float64
}

// New builds a Grid from row-major rows. Every row must have the same
// length; the input slices are copied.
func New(rows [][]float64, t Transform, crs string, nodata float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, eris.New("raster: grid must have at least one cell")
	}
	if t.CellWidth == 0 || t.CellHeight == 0 {
		return nil, eris.New("raster: transform cell size must be non-zero")
	}
	w := len(rows[0])
	cells := make([]float64, 0, w*len(rows))
	for i, r := range rows {
		if len(r) != w {
			return nil, eris.Errorf("raster: row %d has %d cells, want %d", i, len(r), w)
		}
		cells = append(cells, r...)
	}
	return &Grid{Width: w, Height: len(rows), Transform: t, CRS: crs, Nodata: nodata, cells: cells}, nil
}

// Filled allocates a width×height grid with every cell set to value.
func Filled(width, height int, t Transform, crs string, nodata, value float64) *Grid {
	cells := make([]float64, width*height)
	for i := range cells {
		cells[i] = value
	}
	return &Grid{Width: width, Height: height, Transform: t, CRS: crs, Nodata: nodata, cells: cells}
}

// Like allocates a grid conformant with g, filled with nodata.
func (g *Grid) Like(nodata float64) *Grid {
	return Filled(g.Width, g.Height, g.Transform, g.CRS, nodata, nodata)
}

// InBounds reports whether (row, col) addresses a cell of g.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Height && col >= 0 && col < g.Width
}

// ValueAt returns the cell value at (row, col). Out-of-bounds reads are
// rejected rather than clamped.
func (g *Grid) ValueAt(row, col int) (float64, error) {
	if !g.InBounds(row, col) {
		return 0, eris.Errorf("raster: cell (%d,%d) outside %dx%d grid", row, col, g.Height, g.Width)
	}
	return g.cells[row*g.Width+col], nil
}

// At is the unchecked form of ValueAt for loops that already iterate
// within bounds.
func (g *Grid) At(row, col int) float64 {
	return g.cells[row*g.Width+col]
}

// Set writes a cell. Only the allocator of a grid may call it.
func (g *Grid) Set(row, col int, v float64) {
	g.cells[row*g.Width+col] = v
}

// IsNodata reports whether v is the grid's missing-value marker. NaN is
// always treated as missing.
func (g *Grid) IsNodata(v float64) bool {
	return math.IsNaN(v) || v == g.Nodata
}

// Rows returns a copy of the cells as row-major rows.
func (g *Grid) Rows() [][]float64 {
	out := make([][]float64, g.Height)
	for r := range out {
		out[r] = append([]float64(nil), g.cells[r*g.Width:(r+1)*g.Width]...)
	}
	return out
}

// Extent returns the bounding box covered by g's cells.
func (g *Grid) Extent() Extent {
	x0 := g.Transform.OriginX
	x1 := x0 + float64(g.Width)*g.Transform.CellWidth
	y0 := g.Transform.OriginY
	y1 := y0 + float64(g.Height)*g.Transform.CellHeight
	return Extent{
		MinX: math.Min(x0, x1),
		MinY: math.Min(y0, y1),
		MaxX: math.Max(x0, x1),
		MaxY: math.Max(y0, y1),
	}
}

// Conformant reports whether g and o share transform, CRS, width, and
// height, and may therefore be combined cell by cell.
func (g *Grid) Conformant(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.CRS == o.CRS && g.Transform.Equal(o.Transform)
}

// Crop restricts g to the cells overlapping extent. Cells partially inside
// the extent are kept whole, so the result stays on g's cell lattice.
func Crop(g *Grid, extent Extent) (*Grid, error) {
	if !g.Extent().Intersects(extent) {
		return nil, eris.Wrapf(ErrExtentMismatch, "raster: crop %s grid", g.CRS)
	}

	c0, c1 := cellSpan(extent.MinX, extent.MaxX, g.Transform.OriginX, g.Transform.CellWidth, g.Width)
	r0, r1 := cellSpan(extent.MinY, extent.MaxY, g.Transform.OriginY, g.Transform.CellHeight, g.Height)
	if c1 <= c0 || r1 <= r0 {
		return nil, eris.Wrapf(ErrExtentMismatch, "raster: crop %s grid", g.CRS)
	}

	out := &Grid{
		Width:  c1 - c0,
		Height: r1 - r0,
		Transform: Transform{
			OriginX:    g.Transform.OriginX + float64(c0)*g.Transform.CellWidth,
			CellWidth:  g.Transform.CellWidth,
			OriginY:    g.Transform.OriginY + float64(r0)*g.Transform.CellHeight,
			CellHeight: g.Transform.CellHeight,
		},
		CRS:    g.CRS,
		Nodata: g.Nodata,
		cells:  make([]float64, (c1-c0)*(r1-r0)),
	}
	for r := r0; r < r1; r++ {
		copy(out.cells[(r-r0)*out.Width:(r-r0+1)*out.Width], g.cells[r*g.Width+c0:r*g.Width+c1])
	}
	return out, nil
}

// cellSpan converts the coordinate interval [lo, hi] into the half-open
// index range of cells it overlaps along one axis, clamped to [0, n).
func cellSpan(lo, hi, origin, size float64, n int) (int, int) {
	a := (lo - origin) / size
	b := (hi - origin) / size
	if a > b {
		a, b = b, a
	}
	start := int(math.Floor(a + transformTolerance))
	end := int(math.Ceil(b - transformTolerance))
	return max(start, 0), min(end, n)
}
