package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// stubEngine implements Engine with overridable function fields. Calls to
// fields left nil fail, which keeps tests honest about what they exercise.
type stubEngine struct {
	submit     func(ctx context.Context, taskType string, payload json.RawMessage, maxRetries int) (*domain.Task, error)
	getTask    func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	listTasks  func(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error)
	cancel     func(ctx context.Context, id uuid.UUID) error
	statistics func(ctx context.Context) (*domain.Statistics, error)
	syncNow    func() domain.SyncStatus
	cleanup    func(ctx context.Context) (int, error)
	online     bool
}

var errNotStubbed = errors.New("not stubbed")

func (s *stubEngine) Submit(ctx context.Context, taskType string, payload json.RawMessage, maxRetries int) (*domain.Task, error) {
	if s.submit == nil {
		return nil, errNotStubbed
	}
	return s.submit(ctx, taskType, payload, maxRetries)
}

func (s *stubEngine) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if s.getTask == nil {
		return nil, errNotStubbed
	}
	return s.getTask(ctx, id)
}

func (s *stubEngine) ListTasks(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error) {
	if s.listTasks == nil {
		return nil, errNotStubbed
	}
	return s.listTasks(ctx, filter)
}

func (s *stubEngine) Cancel(ctx context.Context, id uuid.UUID) error {
	if s.cancel == nil {
		return errNotStubbed
	}
	return s.cancel(ctx, id)
}

func (s *stubEngine) Statistics(ctx context.Context) (*domain.Statistics, error) {
	if s.statistics == nil {
		return nil, errNotStubbed
	}
	return s.statistics(ctx)
}

func (s *stubEngine) SyncNow() domain.SyncStatus {
	if s.syncNow == nil {
		return domain.SyncStatus{State: domain.SyncStateIdle}
	}
	return s.syncNow()
}

func (s *stubEngine) CleanupExpired(ctx context.Context) (int, error) {
	if s.cleanup == nil {
		return 0, errNotStubbed
	}
	return s.cleanup(ctx)
}

func (s *stubEngine) IsOnline() bool {
	return s.online
}

// newTestTask builds a persisted-looking pending task fixture.
func newTestTask(t *testing.T) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(
		domain.TaskTypeCompoundInterest,
		json.RawMessage(`{"principal":10000,"annual_rate":4,"years":10}`),
		3,
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return task
}
