package attribute

import "errors"

// Sentinel kinds for attribute errors.
var (
	ErrUnknownAttribute = errors.New("unknown attribute")
)
