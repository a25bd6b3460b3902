package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidStatusTransition is returned when a task status change
	// would move backwards in the lifecycle (for example Completed back
	// to Pending).
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrRetryExhausted is returned when a retry is scheduled for a task
	// that has already consumed all of its attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTaskNotCancellable is returned when a cancel request targets a
	// task that already reached a terminal status.
	ErrTaskNotCancellable = errors.New("task is not cancellable")
)
