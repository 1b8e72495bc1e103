package fiducube

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms2"
)

// Error kinds reported by the package. Match them with [errors.Is]; the
// concrete error types below carry the context and can be extracted with
// [errors.As].
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMarkerOversized  = errors.New("marker does not fit plate")
	ErrGridSizeMismatch = errors.New("marker grid size mismatch")
	ErrInvalidTaper     = errors.New("invalid taper")
	ErrTextOutOfBounds  = errors.New("text out of bounds")
	ErrBooleanFailure   = errors.New("boolean operation failed")
)

// ParamError reports a sizing parameter that is out of range or infeasible.
type ParamError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ParamError) Is(target error) bool { return target == ErrInvalidParameter }

// MarkerOversizedError reports that the camera-derived marker width exceeds
// what the plate can hold.
type MarkerOversizedError struct {
	Required float64 // Marker width required by the camera optics.
	Limit    float64 // Plate width times margin fraction.
}

func (e *MarkerOversizedError) Error() string {
	return fmt.Sprintf("required marker width %.3fmm exceeds plate limit %.3fmm", e.Required, e.Limit)
}

func (e *MarkerOversizedError) Is(target error) bool { return target == ErrMarkerOversized }

// GridSizeError reports a marker bit matrix that is not square with the
// expected number of cells.
type GridSizeError struct {
	Want int
	Rows int
	Cols int // Length of the first offending row.
}

func (e *GridSizeError) Error() string {
	return fmt.Sprintf("marker bits are %dx%d, want %dx%d", e.Rows, e.Cols, e.Want, e.Want)
}

func (e *GridSizeError) Is(target error) bool { return target == ErrGridSizeMismatch }

// TaperError reports a tapered prism whose miter consumes its narrow end.
type TaperError struct {
	Solid  string
	Miter  float32
	Limit  float32
	Reason string
}

func (e *TaperError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("taper %q: %s", e.Solid, e.Reason)
	}
	return fmt.Sprintf("taper %q: miter %.4g exceeds half width %.4g of narrow end", e.Solid, e.Miter, e.Limit)
}

func (e *TaperError) Is(target error) bool { return target == ErrInvalidTaper }

// TextBoundsError reports label geometry that leaves the plate or overlaps
// the marker area.
type TextBoundsError struct {
	Text    string
	Bounds  ms2.Box
	Allowed ms2.Box
	Reason  string
}

func (e *TextBoundsError) Error() string {
	return fmt.Sprintf("text %q with bounds %v: %s", e.Text, e.Bounds, e.Reason)
}

func (e *TextBoundsError) Is(target error) bool { return target == ErrTextOutOfBounds }

// BooleanError reports a failed step of an ordered boolean sequence.
type BooleanError struct {
	Part    string
	Step    int // Index into the operation list. -1 means the base solid.
	Op      Op
	Base    string
	Operand string
	Err     error
}

func (e *BooleanError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s: base %q: %v", e.Part, e.Base, e.Err)
	}
	return fmt.Sprintf("%s: step %d %s(%q, %q): %v", e.Part, e.Step, e.Op, e.Base, e.Operand, e.Err)
}

func (e *BooleanError) Unwrap() error { return e.Err }

func (e *BooleanError) Is(target error) bool { return target == ErrBooleanFailure }

// PartFailure records a part that could not be built during a batch.
// MarkerID is -1 for parts not tied to a marker.
type PartFailure struct {
	Part     string
	MarkerID int
	Err      error
}

func (f PartFailure) Error() string {
	return fmt.Sprintf("part %s: %v", f.Part, f.Err)
}

func (f PartFailure) Unwrap() error { return f.Err }
