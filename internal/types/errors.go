package types

import "errors"

// Domain error taxonomy. Services return these (possibly wrapped); the
// response package maps them to HTTP status codes so handlers stay free of
// business logic.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state for operation")
	ErrContention        = errors.New("wallet contention, retry the request")
	ErrFeedUnavailable   = errors.New("price feed unavailable")
)
