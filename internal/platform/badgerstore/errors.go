package badgerstore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/zinses-rechner/calcsync/internal/store"
)

// mapError maps a BadgerDB error to the store package's error
// vocabulary. It wraps the original error to preserve context.
// Errors without a specific mapping pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %v", store.ErrStoreClosed, err)
	}

	return err
}

// mapTaskError is mapError specialised for task lookups, where a
// missing key means the task does not exist.
func mapTaskError(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %v", store.ErrTaskNotFound, err)
	}
	return mapError(err)
}
