package repository

import "errors"

var (
	// ErrVersionConflict is returned when an optimistic-concurrency update
	// finds the row changed since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTerminalVerdict is returned when a verdict update targets a
	// submission whose verdict is already terminal.
	ErrTerminalVerdict = errors.New("submission verdict is terminal")
)
