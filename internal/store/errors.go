package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	// ErrStaleStatus means a compare-and-swap lost: the row's status changed since it was read.
	ErrStaleStatus = errors.New("stale status")
)
