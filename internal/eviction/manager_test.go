package eviction

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/platform/badgerstore"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

type managerHarness struct {
	clk     *clock.Manual
	st      *badgerstore.Store
	bus     *events.Bus
	mgr     *Manager
	removed chan uuid.UUID
}

func newManagerHarness(t *testing.T, maxBytes int64) *managerHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := badgerstore.InMemoryConfig()
	cfg.Logger = logger
	cfg.MaxStorageBytes = maxBytes
	st, err := badgerstore.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &managerHarness{
		clk:     clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		st:      st,
		bus:     events.NewBus(logger),
		removed: make(chan uuid.UUID, 16),
	}
	h.bus.SubscribeTaskUpdated(func(e events.TaskUpdatedEvent) {
		if e.Removed {
			h.removed <- e.Task.ID
		}
	})
	t.Cleanup(h.bus.Close)

	h.mgr = NewManager(st, DefaultPolicy(), h.clk, h.bus, logger, time.Hour)
	t.Cleanup(h.mgr.Stop)
	return h
}

// seedTerminal stores a task and drives it to the given terminal status
// with UpdatedAt pinned to at.
func (h *managerHarness) seedTerminal(t *testing.T, status domain.TaskStatus, at time.Time) *domain.Task {
	t.Helper()

	task, err := domain.NewTask("compound_interest", json.RawMessage(`{"n":1}`), 3, at)
	require.NoError(t, err)
	require.NoError(t, h.st.Put(context.Background(), task))

	err = h.st.Mutate(context.Background(), func(mut store.Mutator) error {
		stored, err := mut.Get(task.ID)
		if err != nil {
			return err
		}
		if err := stored.MarkProcessing(at); err != nil {
			return err
		}
		switch status {
		case domain.TaskStatusCompleted:
			if err := stored.Complete(json.RawMessage(`{"final":1}`), at); err != nil {
				return err
			}
		case domain.TaskStatusFailed:
			if err := stored.Fail("terminal failure", at); err != nil {
				return err
			}
		}
		return mut.Update(stored)
	})
	require.NoError(t, err)

	stored, err := h.st.Get(context.Background(), task.ID)
	require.NoError(t, err)
	return stored
}

func (h *managerHarness) seedPending(t *testing.T, at time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("compound_interest", json.RawMessage(`{"n":1}`), 3, at)
	require.NoError(t, err)
	require.NoError(t, h.st.Put(context.Background(), task))
	return task
}

func (h *managerHarness) taskIDs(t *testing.T) map[uuid.UUID]bool {
	t.Helper()
	tasks, err := h.st.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	out := make(map[uuid.UUID]bool, len(tasks))
	for _, task := range tasks {
		out[task.ID] = true
	}
	return out
}

func TestManager_CleanupExpired(t *testing.T) {
	t.Parallel()

	h := newManagerHarness(t, 0)
	now := h.clk.Now()

	expired := h.seedTerminal(t, domain.TaskStatusCompleted, now.Add(-200*time.Hour))
	alsoExpired := h.seedTerminal(t, domain.TaskStatusFailed, now.Add(-180*time.Hour))
	fresh := h.seedTerminal(t, domain.TaskStatusCompleted, now.Add(-time.Hour))
	oldPending := h.seedPending(t, now.Add(-400*time.Hour))

	removed, err := h.mgr.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining := h.taskIDs(t)
	assert.False(t, remaining[expired.ID])
	assert.False(t, remaining[alsoExpired.ID])
	assert.True(t, remaining[fresh.ID], "fresh terminal tasks stay within the TTL")
	assert.True(t, remaining[oldPending.ID], "pending tasks are never cleaned up")

	gone := map[uuid.UUID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-h.removed:
			gone[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for removal event")
		}
	}
	assert.True(t, gone[expired.ID])
	assert.True(t, gone[alsoExpired.ID])

	// A second pass finds nothing.
	removed, err = h.mgr.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestManager_SweepRunsPeriodically(t *testing.T) {
	t.Parallel()

	h := newManagerHarness(t, 0)
	expired := h.seedTerminal(t, domain.TaskStatusCompleted, h.clk.Now().Add(-200*time.Hour))

	require.NoError(t, h.mgr.Start())
	require.Eventually(t, func() bool {
		return h.clk.TickerCount() == 1
	}, 2*time.Second, time.Millisecond)

	h.clk.Advance(time.Hour)

	require.Eventually(t, func() bool {
		return !h.taskIDs(t)[expired.ID]
	}, 2*time.Second, time.Millisecond, "sweep never removed the expired task")
}

func TestManager_ReclaimFreesAllTerminalWhenAsked(t *testing.T) {
	t.Parallel()

	h := newManagerHarness(t, 1<<20)
	now := h.clk.Now()

	oldest := h.seedTerminal(t, domain.TaskStatusCompleted, now.Add(-3*time.Hour))
	newest := h.seedTerminal(t, domain.TaskStatusCompleted, now.Add(-time.Hour))
	pending := h.seedPending(t, now.Add(-4*time.Hour))

	err := h.st.Mutate(context.Background(), func(mut store.Mutator) error {
		// An impossible request: every terminal task goes, while the
		// older pending task survives untouched.
		freed, err := h.mgr.Reclaim(context.Background(), mut, mut.Usage().MaxStorageBytes)
		if err != nil {
			return err
		}
		assert.Equal(t, oldest.SizeBytes+newest.SizeBytes, freed)
		return nil
	})
	require.NoError(t, err)

	remaining := h.taskIDs(t)
	assert.False(t, remaining[oldest.ID])
	assert.False(t, remaining[newest.ID])
	assert.True(t, remaining[pending.ID])
}

func TestManager_ReclaimThroughStorePut(t *testing.T) {
	t.Parallel()

	// Measure record sizes with an unbudgeted store first.
	probe := newManagerHarness(t, 0)
	sample := probe.seedTerminal(t, domain.TaskStatusCompleted, probe.clk.Now().Add(-200*time.Hour))
	pendingSample := probe.seedPending(t, probe.clk.Now())

	// One byte short of holding both records, so the incoming put must
	// evict the expired task to fit.
	h := newManagerHarness(t, sample.SizeBytes+pendingSample.SizeBytes-1)
	h.st.SetReclaimer(h.mgr)

	evictable := h.seedTerminal(t, domain.TaskStatusCompleted, h.clk.Now().Add(-200*time.Hour))

	// This put does not fit until the manager evicts the expired task.
	incoming := h.seedPending(t, h.clk.Now())

	remaining := h.taskIDs(t)
	assert.False(t, remaining[evictable.ID])
	assert.True(t, remaining[incoming.ID])
}
