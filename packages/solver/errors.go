package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedReference is matched by *UnresolvedReferenceError.
	ErrUnresolvedReference = errors.New("solver: unresolved reference")

	// ErrInvalidSettings is returned for settings that fail validation.
	ErrInvalidSettings = errors.New("solver: invalid settings")
)

// UnresolvedReferenceError reports a bound, constraint or objective
// expression that is neither a number nor a known cell.
type UnresolvedReferenceError struct {
	Expression string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("solver: cannot resolve %q: not a number, input, computed cell or default", e.Expression)
}

func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference
}
