package raster

import (
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CropTo clips target to the bounding extent of reference.
func CropTo(target, reference *Grid) (*Grid, error) {
	if target.CRS != reference.CRS {
		return nil, eris.Wrapf(ErrCRSMismatch, "raster: crop %q to %q", target.CRS, reference.CRS)
	}
	out, err := Crop(target, reference.Extent())
	if errors.Is(err, ErrExtentMismatch) {
		return nil, eris.Wrap(ErrEmptyIntersection, "raster: crop to reference extent")
	}
	return out, err
}

// Resample produces a grid with reference's width, height, transform, and
// CRS, each cell filled from the target cell whose area contains the output
// cell center. Values are copied, never interpolated. Output cells whose
// center falls outside target are nodata.
func Resample(target, reference *Grid) (*Grid, error) {
	if target.CRS != reference.CRS {
		return nil, eris.Wrapf(ErrCRSMismatch, "raster: resample %q onto %q", target.CRS, reference.CRS)
	}
	if !target.Extent().Intersects(reference.Extent()) {
		return nil, eris.Wrap(ErrEmptyIntersection, "raster: resample onto reference")
	}

	out := reference.Like(target.Nodata)
	for r := 0; r < out.Height; r++ {
		for c := 0; c < out.Width; c++ {
			x, y := reference.Transform.CellCenter(r, c)
			tr, tc := target.Transform.CellIndex(x, y)
			if !target.InBounds(tr, tc) {
				continue
			}
			out.Set(r, c, target.At(tr, tc))
		}
	}
	return out, nil
}

// Align crops target to reference's extent and resamples it onto
// reference's cell lattice. Failures are reported as *AlignmentError with
// the supplied names.
func Align(target, reference *Grid, targetName, referenceName string) (*Grid, error) {
	wrap := func(err error) error {
		return &AlignmentError{Reference: referenceName, Target: targetName, Err: err}
	}

	cropped, err := CropTo(target, reference)
	if err != nil {
		return nil, wrap(err)
	}
	out, err := Resample(cropped, reference)
	if err != nil {
		return nil, wrap(err)
	}

	zap.L().Debug("raster: aligned grid",
		zap.String("target", targetName),
		zap.String("reference", referenceName),
		zap.Int("source_width", target.Width),
		zap.Int("source_height", target.Height),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
	)
	return out, nil
}
