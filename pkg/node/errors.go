package node

import "errors"

// Errors returned to callers for contract violations. OS-level failures are
// logged instead and never surface as one of these.
var (
	ErrUnsupported     = errors.New("unsupported operation")
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidArgument = errors.New("invalid argument")
)
