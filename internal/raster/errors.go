package raster

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Alignment failures. They are not locally recoverable; a run that hits one
// must abort and report the grid pair.
var (
	ErrExtentMismatch    = eris.New("raster: requested extent does not intersect grid")
	ErrCRSMismatch       = eris.New("raster: grids declare different coordinate systems")
	ErrEmptyIntersection = eris.New("raster: crop produced an empty grid")
)

// AlignmentError names the grid pair that could not be reconciled.
type AlignmentError struct {
	Reference string
	Target    string
	Err       error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("align %s onto %s: %v", e.Target, e.Reference, e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }
