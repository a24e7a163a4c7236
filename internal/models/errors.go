package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable marks a transient persistence failure worth retrying.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStaleHandle is returned when cancelling a runner task that already fired or never existed.
	ErrStaleHandle = errors.New("stale trigger handle")
)
