package ride

import "errors"

var (
	// ErrNotFound: unknown ride id. Client error, never retried.
	ErrNotFound = errors.New("ride not found")

	// ErrInvalidTransition: the requested edge is not in the lifecycle
	// graph. Surfaced verbatim to the caller.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyAccepted: another driver won the accept race. A soft
	// "offer withdrawn" signal, not logged as an error.
	ErrAlreadyAccepted = errors.New("ride no longer available")

	// ErrDriverMismatch: the caller supplied a driver id that is not the
	// one assigned to the ride.
	ErrDriverMismatch = errors.New("driver does not match ride")
)
