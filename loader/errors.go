package loader

import (
	"errors"
	"fmt"
)

// ErrKind classifies a load failure.
type ErrKind string

// Load failure kinds.
const (
	KindNotFound    ErrKind = "not_found"
	KindNotFile     ErrKind = "not_file"
	KindOutsideRoot ErrKind = "outside_root"
	KindRead        ErrKind = "read"
	KindSyntax      ErrKind = "syntax"
	KindBackend     ErrKind = "backend"
)

// ErrNoFiles is returned when a load request names no files.
var ErrNoFiles = errors.New("no files specified")

// LoadError describes why one file could not be loaded.
type LoadError struct {
	Path string
	Kind ErrKind
	Err  error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("file not found: %s", e.Path)
	case KindNotFile:
		return fmt.Sprintf("not a regular file: %s", e.Path)
	case KindOutsideRoot:
		return fmt.Sprintf("path outside base directory: %s", e.Path)
	case KindSyntax:
		return fmt.Sprintf("invalid RDF syntax in %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("load %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }
