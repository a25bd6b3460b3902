package task

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// memStore implements store.TaskStore in memory for testing. It keeps
// the durable store's contract: claims pick the oldest ready pending
// task by (ReadyAt, ID), and all mutations are serialized. Override
// UpdateFn or DeleteFn to inject failures.
type memStore struct {
	mutex      sync.Mutex
	tasks      map[uuid.UUID]*domain.Task
	lastSyncAt time.Time
	maxBytes   int64
	closed     bool

	UpdateFn func(ctx context.Context, task *domain.Task) error
	DeleteFn func(ctx context.Context, id uuid.UUID) error
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

func (s *memStore) Put(ctx context.Context, task *domain.Task) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	clone := task.Clone()
	clone.SizeBytes = recordSize(clone)
	s.tasks[task.ID] = clone
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (s *memStore) Update(ctx context.Context, task *domain.Task) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, task)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.updateLocked(task)
}

func (s *memStore) updateLocked(task *domain.Task) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	if _, exists := s.tasks[task.ID]; !exists {
		return store.ErrTaskNotFound
	}
	clone := task.Clone()
	clone.SizeBytes = recordSize(clone)
	s.tasks[task.ID] = clone
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, id)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) List(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if filter.Matches(task) {
			tasks = append(tasks, task.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return bytes.Compare(tasks[i].ID[:], tasks[j].ID[:]) < 0
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (s *memStore) ClaimReady(ctx context.Context, now time.Time) (*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	oldest := s.oldestPendingLocked()
	if oldest == nil || oldest.ReadyAt.After(now) {
		return nil, store.ErrNoTaskReady
	}
	if err := oldest.MarkProcessing(now); err != nil {
		return nil, err
	}
	return oldest.Clone(), nil
}

func (s *memStore) NextReadyAt(ctx context.Context) (time.Time, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return time.Time{}, store.ErrStoreClosed
	}
	oldest := s.oldestPendingLocked()
	if oldest == nil {
		return time.Time{}, store.ErrNoTaskReady
	}
	return oldest.ReadyAt, nil
}

// oldestPendingLocked returns the pending task with the smallest
// (ReadyAt, ID), or nil when no pending tasks exist.
func (s *memStore) oldestPendingLocked() *domain.Task {
	var oldest *domain.Task
	for _, task := range s.tasks {
		if task.Status != domain.TaskStatusPending {
			continue
		}
		if oldest == nil {
			oldest = task
			continue
		}
		if task.ReadyAt.Before(oldest.ReadyAt) ||
			(task.ReadyAt.Equal(oldest.ReadyAt) && bytes.Compare(task.ID[:], oldest.ID[:]) < 0) {
			oldest = task
		}
	}
	return oldest
}

func (s *memStore) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := &store.Snapshot{
		Budget:     s.budgetLocked(),
		LastSyncAt: s.lastSyncAt,
	}
	for _, task := range s.tasks {
		snap.Tasks = append(snap.Tasks, task.Clone())
	}
	sort.Slice(snap.Tasks, func(i, j int) bool {
		return bytes.Compare(snap.Tasks[i].ID[:], snap.Tasks[j].ID[:]) < 0
	})
	return snap, nil
}

func (s *memStore) Usage(ctx context.Context) (domain.StorageBudget, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.budgetLocked(), nil
}

func (s *memStore) budgetLocked() domain.StorageBudget {
	var used int64
	for _, task := range s.tasks {
		used += task.SizeBytes
	}
	return domain.StorageBudget{
		MaxStorageBytes:   s.maxBytes,
		CurrentUsageBytes: used,
	}
}

func (s *memStore) SetLastSyncAt(ctx context.Context, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastSyncAt = at
	return nil
}

// SetReclaimer is a no-op: the in-memory store never enforces a budget,
// so nothing ever asks the reclaimer for space.
func (s *memStore) SetReclaimer(r store.Reclaimer) {}

func (s *memStore) Mutate(ctx context.Context, fn func(m store.Mutator) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	// Run against a scratch copy so a failing fn leaves nothing behind.
	scratch := make(map[uuid.UUID]*domain.Task, len(s.tasks))
	for id, task := range s.tasks {
		scratch[id] = task.Clone()
	}
	if err := fn(&memMutator{tasks: scratch}); err != nil {
		return err
	}
	s.tasks = scratch
	return nil
}

func (s *memStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// memMutator is the transactional view handed to Mutate callbacks.
type memMutator struct {
	tasks map[uuid.UUID]*domain.Task
}

func (m *memMutator) Get(id uuid.UUID) (*domain.Task, error) {
	task, exists := m.tasks[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (m *memMutator) Tasks(filter store.ListFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for _, task := range m.tasks {
		if filter.Matches(task) {
			tasks = append(tasks, task.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return bytes.Compare(tasks[i].ID[:], tasks[j].ID[:]) < 0
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (m *memMutator) Update(task *domain.Task) error {
	if _, exists := m.tasks[task.ID]; !exists {
		return store.ErrTaskNotFound
	}
	clone := task.Clone()
	clone.SizeBytes = recordSize(clone)
	m.tasks[task.ID] = clone
	return nil
}

func (m *memMutator) Remove(id uuid.UUID) error {
	if _, exists := m.tasks[id]; !exists {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memMutator) Usage() domain.StorageBudget {
	var used int64
	for _, task := range m.tasks {
		used += task.SizeBytes
	}
	return domain.StorageBudget{CurrentUsageBytes: used}
}

func recordSize(task *domain.Task) int64 {
	data, err := json.Marshal(task)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTask(t *testing.T, taskType string, maxRetries int, now time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(taskType, json.RawMessage(`{"n":1}`), maxRetries, now)
	require.NoError(t, err)
	return task
}
