package raster

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minBandRows keeps small grids on a single goroutine.
const minBandRows = 64

// Band is a half-open row range [Start, End).
type Band struct {
	Index int
	Start int
	End   int
}

// Bands splits height rows into at most workers contiguous bands. workers
// <= 0 means GOMAXPROCS.
func Bands(height, workers int) []Band {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n := min(workers, max(1, height/minBandRows))
	size := (height + n - 1) / n

	bands := make([]Band, 0, n)
	for start := 0; start < height; start += size {
		bands = append(bands, Band{Index: len(bands), Start: start, End: min(start+size, height)})
	}
	return bands
}

// ForEachBand runs fn over every band concurrently and waits for all of
// them. The first error cancels the shared context and is returned.
func ForEachBand(ctx context.Context, height, workers int, fn func(ctx context.Context, b Band) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range Bands(height, workers) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, b)
		})
	}
	return g.Wait()
}
