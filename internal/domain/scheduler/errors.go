package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrInvalidUserID  = errors.New("invalid user id")
	ErrInvalidTrigger = errors.New("invalid trigger type")
	ErrInvalidConfig  = errors.New("invalid scheduler config")
	ErrBatchDisabled  = errors.New("batch updates disabled")
	ErrStopped        = errors.New("scheduler stopped")
)
