package similarity

import "errors"

// Sentinel kinds for similarity errors.
var (
	ErrSelfComparison = errors.New("self comparison not supported")
	ErrNotFound       = errors.New("not found")
)
