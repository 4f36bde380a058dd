package mapalgebra

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/suitability-cli/internal/raster"
	"github.com/sells-group/suitability-cli/internal/reclass"
)

var nd = math.NaN()

func maskGrid(t *testing.T, tr raster.Transform, rows [][]float64) *raster.Grid {
	t.Helper()
	g, err := raster.New(rows, tr, "EPSG:4326", nd)
	require.NoError(t, err)
	return g
}

func defaultTransform() raster.Transform {
	return raster.Transform{OriginX: 0, CellWidth: 1, OriginY: 2, CellHeight: -1}
}

func TestCombine_TruthTable(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {nd, nd}})
	b := maskGrid(t, defaultTransform(), [][]float64{{1, nd}, {1, nd}})

	out, err := Combine(context.Background(), 1, a, b)
	require.NoError(t, err)

	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			want := a.At(r, c) == 1 && b.At(r, c) == 1
			got := out.At(r, c) == reclass.Suitable
			assert.Equal(t, want, got, "cell (%d,%d)", r, c)
			if !want {
				assert.True(t, out.IsNodata(out.At(r, c)))
			}
		}
	}
}

func TestCombine_NonOneValuesAreAbsorbing(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, 0}, {2, 1}})
	b := maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {1, -9999}})

	out, err := Combine(context.Background(), 1, a, b)
	require.NoError(t, err)

	assert.Equal(t, reclass.Suitable, out.At(0, 0))
	assert.True(t, math.IsNaN(out.At(0, 1)))
	assert.True(t, math.IsNaN(out.At(1, 0)))
	assert.True(t, math.IsNaN(out.At(1, 1)))
}

func TestCombine_NodataSentinelOfOneIsNotSuitable(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {1, 1}})
	// A mask whose nodata value collides with Suitable.
	b, err := raster.New([][]float64{{1, 1}, {1, 1}}, defaultTransform(), "EPSG:4326", 1)
	require.NoError(t, err)

	out, err := Combine(context.Background(), 1, a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, CountSuitable(out))
	assert.Equal(t, 0, CountSuitable(b))
	assert.Equal(t, 4, CountSuitable(a))
}

func TestCombine_SingleMaskIsCopy(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, nd}, {nd, 1}})

	out, err := Combine(context.Background(), 0, a)
	require.NoError(t, err)
	assert.Equal(t, 2, CountSuitable(out))
	assert.NotSame(t, a, out)
}

func TestCombine_ManyMasks(t *testing.T) {
	masks := make([]*raster.Grid, 5)
	for i := range masks {
		masks[i] = maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {1, 1}})
	}
	masks[3].Set(1, 1, nd)

	out, err := Combine(context.Background(), 2, masks...)
	require.NoError(t, err)
	assert.Equal(t, 3, CountSuitable(out))
}

func TestCombine_NonConformant(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {1, 1}})
	shifted := defaultTransform()
	shifted.OriginX = 10
	b := maskGrid(t, shifted, [][]float64{{1, 1}, {1, 1}})

	_, err := Combine(context.Background(), 1, a, a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonConformant)

	var ce *ConformanceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Index)
}

func TestCombine_NoMasks(t *testing.T) {
	_, err := Combine(context.Background(), 1)
	assert.Error(t, err)
}

func TestCombine_InputsUntouched(t *testing.T) {
	a := maskGrid(t, defaultTransform(), [][]float64{{1, 1}, {1, 1}})
	b := maskGrid(t, defaultTransform(), [][]float64{{nd, nd}, {nd, nd}})

	_, err := Combine(context.Background(), 1, a, b)
	require.NoError(t, err)
	assert.Equal(t, 4, CountSuitable(a))
	assert.Equal(t, 0, CountSuitable(b))
}
