package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrReadOnlyStore = errors.New("rating store is read-only")
)
