package coverage

import "errors"

var (
	// ErrInvalidInput marks lookups rejected before any store query. Not cached, not retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStore marks store failures and timeouts. Not cached; safe to retry.
	ErrStore = errors.New("coverage store error")
)
