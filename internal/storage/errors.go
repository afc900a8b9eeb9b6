package storage

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create-if-absent insert loses to an
	// existing row, e.g. a second penalty for the same (habit, date).
	ErrConflict = errors.New("already exists")
)
