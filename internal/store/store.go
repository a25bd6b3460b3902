package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zinses-rechner/calcsync/internal/domain"
)

// ListFilter narrows the tasks returned by listing operations.
// A zero filter matches everything.
type ListFilter struct {
	// Statuses limits results to tasks in any of the given statuses.
	// Empty means all statuses.
	Statuses []domain.TaskStatus

	// Limit caps the number of results. Zero means no cap.
	Limit int
}

// Matches reports whether the task passes the filter's status predicate.
func (f ListFilter) Matches(task *domain.Task) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if task.Status == s {
			return true
		}
	}
	return false
}

// Snapshot is the result of a full scan of the store, taken atomically
// with respect to writers. Statistics are projected from it.
type Snapshot struct {
	Tasks          []*domain.Task
	CorruptRecords int
	Budget         domain.StorageBudget
	LastSyncAt     time.Time
}

// Mutator is the view of the store handed to callbacks running inside
// the serialized write path. All methods operate within the caller's
// transaction; changes become visible atomically when it commits.
type Mutator interface {
	// Get retrieves a detached copy of a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(id uuid.UUID) (*domain.Task, error)

	// Tasks retrieves detached copies of tasks matching the filter,
	// ordered by ID (submission order). Corrupt records are skipped.
	Tasks(filter ListFilter) ([]*domain.Task, error)

	// Update persists changes to an existing task and adjusts usage
	// accounting by the size delta.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(task *domain.Task) error

	// Remove deletes a task and releases its bytes.
	// Returns ErrTaskNotFound if the task does not exist.
	Remove(id uuid.UUID) error

	// Usage returns the budget as it stands within the transaction,
	// including the effect of removals made so far.
	Usage() domain.StorageBudget
}

// Reclaimer frees storage when a write would exceed the budget. The
// store invokes it synchronously inside the write path, before giving
// up on the write. Implementations may only remove terminal tasks.
type Reclaimer interface {
	// Reclaim attempts to make room for an incoming write of the given
	// size. It returns the number of bytes freed; the store re-checks
	// the budget afterwards and fails the write if it still does not fit.
	Reclaim(ctx context.Context, m Mutator, incoming int64) (int64, error)
}

// TaskStore defines the interface for durable task persistence with
// byte-budget accounting. Implementations serialize all mutations
// through a single internal write path; concurrent callers are safe,
// and reads always observe fully committed state.
// Version: 1.0
type TaskStore interface {
	// Put persists a new task. If the write would exceed the storage
	// budget, the store's Reclaimer runs first; if space still cannot
	// be found the task is not stored and ErrQuotaExceeded is returned.
	// Returns ErrDuplicate if a task with the same ID exists.
	// Returns validation errors from the domain Task if data is invalid.
	Put(ctx context.Context, task *domain.Task) error

	// Get retrieves a detached copy of a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update saves changes to an existing task, maintaining the ready
	// index and usage accounting.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task and releases its bytes.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves detached copies of tasks matching the filter,
	// ordered by ID (submission order). Corrupt records are skipped
	// and logged, never failing the listing.
	List(ctx context.Context, filter ListFilter) ([]*domain.Task, error)

	// ClaimReady atomically takes the oldest pending task whose ReadyAt
	// is not after now, marks it processing, and returns a detached
	// copy. Returns ErrNoTaskReady if nothing is ready.
	ClaimReady(ctx context.Context, now time.Time) (*domain.Task, error)

	// NextReadyAt returns the ReadyAt of the oldest pending task,
	// whether or not it is ready yet.
	// Returns ErrNoTaskReady if no pending tasks exist.
	NextReadyAt(ctx context.Context) (time.Time, error)

	// Snapshot scans the entire store and returns its contents along
	// with usage and sync metadata. Corrupt records are counted, not
	// returned.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Usage returns the current storage budget state.
	Usage(ctx context.Context) (domain.StorageBudget, error)

	// SetLastSyncAt durably records the completion time of the most
	// recent successful sync pass.
	SetLastSyncAt(ctx context.Context, at time.Time) error

	// SetReclaimer installs the hook invoked when a write would exceed
	// the storage budget. Install it before serving writes; a store
	// without one rejects over-budget writes outright.
	SetReclaimer(r Reclaimer)

	// Mutate runs fn with exclusive access to the store's write path.
	// Everything fn does through the Mutator commits atomically when fn
	// returns nil, and is discarded when fn returns an error.
	Mutate(ctx context.Context, fn func(m Mutator) error) error

	// Close flushes and releases the underlying storage. The store is
	// unusable afterwards; operations return ErrStoreClosed.
	Close() error
}
