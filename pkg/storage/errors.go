package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when an answer does not exist or has been deleted.
	ErrNotFound = errors.New("answer not found")

	// ErrConflict is returned when an answer with the given ID already exists.
	ErrConflict = errors.New("answer already exists")
)
