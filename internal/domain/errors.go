package domain

import "errors"

// Common domain errors surfaced by parsing and rendering operations.
var (
	// ErrInvalidTimestamp indicates an event time that matches none of
	// the known tracking-log timestamp layouts.
	ErrInvalidTimestamp = errors.New("invalid event timestamp")

	// ErrUnknownColumn indicates a configured output column that no
	// distribution row field maps to.
	ErrUnknownColumn = errors.New("unknown output column")
)
