package types

import "errors"

// Sentinel errors returned by the event loop and submit/cancel paths
// (spec.md §7).
var (
	// ErrBusy is returned from submit/cancel when the event channel is
	// near capacity. Ticks never produce this error — they coalesce.
	ErrBusy = errors.New("core: event loop busy")

	// ErrShutdown is returned for events enqueued during or after the
	// shutdown drain.
	ErrShutdown = errors.New("core: event loop shutting down")

	// ErrTimeout is returned when a submit/cancel could not be enqueued
	// before its caller-supplied deadline.
	ErrTimeout = errors.New("core: enqueue deadline exceeded")

	// ErrNotFound is returned for cancel/query of an unknown or already
	// terminal order.
	ErrNotFound = errors.New("core: order not found")

	// ErrConflict is returned for cancel of an order that is no longer
	// cancellable.
	ErrConflict = errors.New("core: order not cancellable")

	// ErrValidation wraps a non-retryable input/ownership/balance failure
	// surfaced synchronously to the caller.
	ErrValidation = errors.New("core: order validation failed")
)
