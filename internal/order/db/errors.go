package db

import "errors"

var (
	// ErrOrderNotFound is returned when no order exists for the given id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderState is returned when a transition is attempted from a status
	// that does not permit it, including a PENDING order past its TTL.
	ErrOrderState = errors.New("order is not in a valid state for this operation")
)
