package db

import "errors"

var (
	// ErrTicketNotFound is returned when no ticket exists for the given id.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrVersionConflict is returned when a reserve loses the optimistic race:
	// the submitted version no longer matches the stored one.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrTicketState is returned when a transition is attempted from a status
	// that does not permit it.
	ErrTicketState = errors.New("ticket is not in a valid state for this operation")
)
