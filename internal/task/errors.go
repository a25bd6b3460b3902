package task

import (
	"errors"
	"fmt"
)

// ErrNoExecutor is returned when a task's type has no registered executor.
var ErrNoExecutor = errors.New("no executor registered for task type")

// PermanentError marks an execution failure that retrying cannot fix,
// such as a validation rejection from the calculation service. The
// processor fails the task immediately instead of consuming retries.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the underlying cause to support errors.Is/errors.As.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether any error in err's chain is a
// PermanentError. Unmarked errors are transient: the processor retries
// them until the task's attempts run out.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}
