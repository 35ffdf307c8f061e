package store

import "errors"

// Common store errors.
var (
	// ErrNotReady is returned when the store has no backend.
	ErrNotReady = errors.New("store backend not initialized")

	// ErrUndefinedPrefix is returned when a prefixed name uses an unknown prefix.
	ErrUndefinedPrefix = errors.New("undefined prefix")

	// ErrBlankNodeDelete is returned when a delete names a blank node, which
	// cannot be matched across documents.
	ErrBlankNodeDelete = errors.New("blank nodes cannot be deleted by value")

	// ErrNoTriples is returned when an insert or delete carries no statements.
	ErrNoTriples = errors.New("no triples given")
)
