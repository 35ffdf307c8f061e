package validation

import (
	"errors"
	"fmt"
)

// ErrNoShapes is returned when validation runs before any shapes are loaded.
var ErrNoShapes = errors.New("no SHACL shapes loaded")

// ShapeLoadError reports a shapes file that could not be read or parsed.
type ShapeLoadError struct {
	File string
	Err  error
}

func (e *ShapeLoadError) Error() string {
	return fmt.Sprintf("failed to load shapes from %s: %v", e.File, e.Err)
}

func (e *ShapeLoadError) Unwrap() error { return e.Err }

// ExecutionError reports a failure of the validation engine itself.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("validation execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
