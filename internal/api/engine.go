package api

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// Engine is the queue surface the device agent API depends on. The engine
// package implements it; handlers only see this slice of it.
type Engine interface {
	// Submit enqueues a calculation task. A negative maxRetries selects
	// the default retry budget.
	Submit(ctx context.Context, taskType string, payload json.RawMessage, maxRetries int) (*domain.Task, error)

	// GetTask returns a single task by ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks returns tasks matching the filter in submission order.
	ListTasks(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error)

	// Cancel removes a pending task or requests cancellation of a
	// processing one.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Statistics reports queue counters and storage usage.
	Statistics(ctx context.Context) (*domain.Statistics, error)

	// SyncNow triggers an immediate sync attempt and reports the state
	// after the trigger was accepted.
	SyncNow() domain.SyncStatus

	// CleanupExpired removes terminal tasks past their retention period
	// and returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)

	// IsOnline reports the current connectivity verdict.
	IsOnline() bool
}
