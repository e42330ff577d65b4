package repository

import "errors"

var (
	ErrDBNotReady = errors.New("database not initialized")
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")

	// ErrCounterConflict means the counter no longer holds the expected value
	// because another allocation won the conditional update.
	ErrCounterConflict = errors.New("counter was modified concurrently")
)
