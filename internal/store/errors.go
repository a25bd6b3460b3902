package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrDuplicate is returned when an operation would create a duplicate
	// of an entity that must be unique (a task with an existing ID).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrQuotaExceeded is returned when a write would push storage usage
	// past the configured budget and eviction could not free enough space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrCorruptRecord is returned when a persisted record cannot be
	// decoded. Scans skip and count such records rather than failing.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrNoTaskReady is returned when no pending task is ready for
	// processing at the requested time.
	ErrNoTaskReady = errors.New("no task ready")

	// ErrStoreClosed is returned when an operation is attempted after the
	// store has been closed.
	ErrStoreClosed = errors.New("store is closed")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceededError checks if the error indicates the storage budget
// could not accommodate a write.
func IsQuotaExceededError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsCorruptRecordError checks if the error indicates an undecodable
// persisted record.
func IsCorruptRecordError(err error) bool {
	return errors.Is(err, ErrCorruptRecord)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "metadata")
	Operation string // The operation that failed (e.g., "put", "claim")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
