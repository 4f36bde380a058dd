package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitTransform() Transform {
	return Transform{OriginX: 0, CellWidth: 1, OriginY: 4, CellHeight: -1}
}

func mustGrid(t *testing.T, rows [][]float64, tr Transform) *Grid {
	t.Helper()
	g, err := New(rows, tr, "EPSG:4326", -9999)
	require.NoError(t, err)
	return g
}

func TestNew_RejectsRaggedRows(t *testing.T) {
	_, err := New([][]float64{{1, 2}, {3}}, unitTransform(), "EPSG:4326", -9999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestNew_RejectsEmpty(t *testing.T) {
	_, err := New(nil, unitTransform(), "EPSG:4326", -9999)
	require.Error(t, err)
}

func TestNew_RejectsZeroCellSize(t *testing.T) {
	_, err := New([][]float64{{1}}, Transform{CellWidth: 0, CellHeight: -1}, "EPSG:4326", -9999)
	require.Error(t, err)
}

func TestNew_CopiesInput(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}}
	g := mustGrid(t, rows, unitTransform())
	rows[0][0] = 99

	v, err := g.ValueAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestValueAt(t *testing.T) {
	g := mustGrid(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, unitTransform())

	v, err := g.ValueAt(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	for _, idx := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 3}} {
		_, err := g.ValueAt(idx[0], idx[1])
		assert.Error(t, err, "index %v", idx)
	}
}

func TestIsNodata(t *testing.T) {
	g := mustGrid(t, [][]float64{{1}}, unitTransform())
	assert.True(t, g.IsNodata(-9999))
	assert.True(t, g.IsNodata(math.NaN()))
	assert.False(t, g.IsNodata(0))
}

func TestExtent(t *testing.T) {
	g := mustGrid(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, unitTransform())
	assert.Equal(t, Extent{MinX: 0, MinY: 2, MaxX: 3, MaxY: 4}, g.Extent())
}

func TestConformant(t *testing.T) {
	a := mustGrid(t, [][]float64{{1, 2}, {3, 4}}, unitTransform())
	b := mustGrid(t, [][]float64{{5, 6}, {7, 8}}, unitTransform())
	assert.True(t, a.Conformant(b))

	shifted := unitTransform()
	shifted.OriginX = 0.5
	c := mustGrid(t, [][]float64{{5, 6}, {7, 8}}, shifted)
	assert.False(t, a.Conformant(c))

	d := mustGrid(t, [][]float64{{5, 6, 7}, {7, 8, 9}}, unitTransform())
	assert.False(t, a.Conformant(d))

	e := mustGrid(t, [][]float64{{5, 6}, {7, 8}}, unitTransform())
	e.CRS = "EPSG:3857"
	assert.False(t, a.Conformant(e))
}

func TestTransformEqual_ToleratesFloatDrift(t *testing.T) {
	a := Transform{OriginX: 100, CellWidth: 0.1, OriginY: 50, CellHeight: -0.1}
	b := Transform{OriginX: 100 + 1e-12, CellWidth: 0.1, OriginY: 50, CellHeight: -0.1}
	assert.True(t, a.Equal(b))
}

func TestCrop(t *testing.T) {
	g := mustGrid(t, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}, unitTransform())

	out, err := Crop(g, Extent{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 2, out.Height)
	assert.Equal(t, [][]float64{{6, 7}, {10, 11}}, out.Rows())
	assert.Equal(t, Transform{OriginX: 1, CellWidth: 1, OriginY: 3, CellHeight: -1}, out.Transform)
}

func TestCrop_PartialCellsKeptWhole(t *testing.T) {
	g := mustGrid(t, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}, unitTransform())

	out, err := Crop(g, Extent{MinX: 0.5, MinY: 2.5, MaxX: 1.5, MaxY: 3.5})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {5, 6}}, out.Rows())
}

func TestCrop_ExtentBeyondGridIsClamped(t *testing.T) {
	g := mustGrid(t, [][]float64{{1, 2}, {3, 4}}, Transform{OriginX: 0, CellWidth: 1, OriginY: 2, CellHeight: -1})

	out, err := Crop(g, Extent{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10})
	require.NoError(t, err)
	assert.Equal(t, g.Rows(), out.Rows())
	assert.True(t, g.Conformant(out))
}

func TestCrop_NoIntersection(t *testing.T) {
	g := mustGrid(t, [][]float64{{1, 2}, {3, 4}}, Transform{OriginX: 0, CellWidth: 1, OriginY: 2, CellHeight: -1})

	_, err := Crop(g, Extent{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtentMismatch)

	// Touching along an edge is not an intersection.
	_, err = Crop(g, Extent{MinX: 2, MinY: 0, MaxX: 3, MaxY: 2})
	assert.ErrorIs(t, err, ErrExtentMismatch)
}

func TestCrop_DoesNotMutateInput(t *testing.T) {
	g := mustGrid(t, [][]float64{{1, 2}, {3, 4}}, Transform{OriginX: 0, CellWidth: 1, OriginY: 2, CellHeight: -1})
	out, err := Crop(g, Extent{MinX: 0, MinY: 1, MaxX: 1, MaxY: 2})
	require.NoError(t, err)

	out.Set(0, 0, 42)
	assert.Equal(t, 1.0, g.At(0, 0))
}
