// Package api declares HTTP contracts and route registration helpers.
package api

import "errors"

// Sentinel kinds for request validation errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
)
