package explain

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is matched by every ShapeError.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNoAttention is returned when an item carries no attention slices.
	ErrNoAttention = fmt.Errorf("%w: no attention slices", ErrShapeMismatch)
	// ErrNonFinite is returned for NaN or infinite attention weights.
	ErrNonFinite = errors.New("non-finite attention value")
)

// ShapeError reports a dimension that disagrees with what the caller
// configured. It is never recovered by truncation.
type ShapeError struct {
	Field string
	Got   int
	Want  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch: %s is %d, want %d", e.Field, e.Got, e.Want)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// ItemError attaches the batch position to a per-item failure.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
