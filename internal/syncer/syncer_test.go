package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/task"
)

type fakeProcessor struct {
	mu     sync.Mutex
	online []bool
	kicks  int
}

func (p *fakeProcessor) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, online)
}

func (p *fakeProcessor) Kick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kicks++
}

func (p *fakeProcessor) onlineCalls() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.online...)
}

func (p *fakeProcessor) kickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kicks
}

type fakeSyncStore struct {
	mu     sync.Mutex
	stored []time.Time
	err    error
}

func (s *fakeSyncStore) SetLastSyncAt(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, at)
	return nil
}

func (s *fakeSyncStore) storedTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.stored...)
}

type coordHarness struct {
	clk      *clock.Manual
	st       *fakeSyncStore
	proc     *fakeProcessor
	bus      *events.Bus
	coord    *Coordinator
	statuses chan domain.SyncStatus
}

func newCoordHarness(t *testing.T, lastSyncAt time.Time) *coordHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &coordHarness{
		clk:      clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		st:       &fakeSyncStore{},
		proc:     &fakeProcessor{},
		bus:      events.NewBus(logger),
		statuses: make(chan domain.SyncStatus, 16),
	}
	h.bus.SubscribeSyncStatusChanged(func(e events.SyncStatusChangedEvent) {
		h.statuses <- e.Status
	})
	h.coord = New(h.st, h.proc, h.clk, h.bus, logger, lastSyncAt)
	t.Cleanup(h.bus.Close)
	return h
}

func (h *coordHarness) waitStatus(t *testing.T) domain.SyncStatus {
	t.Helper()
	select {
	case status := <-h.statuses:
		return status
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync status event")
		return domain.SyncStatus{}
	}
}

func TestCoordinator_InitialStatus(t *testing.T) {
	t.Parallel()

	lastSync := time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)
	h := newCoordHarness(t, lastSync)

	status := h.coord.Status()
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.True(t, status.LastSyncAt.Equal(lastSync))
	assert.Empty(t, status.LastSyncError)
}

func TestCoordinator_OnlineStartsSyncing(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})

	h.coord.HandleNetworkChange(true)

	status := h.waitStatus(t)
	assert.Equal(t, domain.SyncStateSyncing, status.State)
	assert.Equal(t, domain.SyncStateSyncing, h.coord.Status().State)
	assert.Equal(t, []bool{true}, h.proc.onlineCalls())

	// A repeated transition to the same state changes nothing.
	h.coord.HandleNetworkChange(true)
	assert.Equal(t, []bool{true}, h.proc.onlineCalls())
	assert.Empty(t, h.statuses)
}

func TestCoordinator_CleanDrainRecordsSyncTime(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})
	h.coord.HandleNetworkChange(true)
	require.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)

	h.clk.Advance(time.Minute)
	h.coord.HandleDrained(task.DrainStats{Completed: 2, Retried: 1})

	status := h.waitStatus(t)
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.True(t, status.LastSyncAt.Equal(h.clk.Now()))
	assert.Empty(t, status.LastSyncError)

	stored := h.st.storedTimes()
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Equal(h.clk.Now()))
}

func TestCoordinator_FailedDrainEntersErrorState(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})
	h.coord.HandleNetworkChange(true)
	require.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)

	h.coord.HandleDrained(task.DrainStats{Completed: 1, Failed: 2})

	status := h.waitStatus(t)
	assert.Equal(t, domain.SyncStateError, status.State)
	assert.Contains(t, status.LastSyncError, "2 tasks failed")
	assert.True(t, status.LastSyncAt.IsZero(), "a failed pass must not record a sync time")
	assert.Empty(t, h.st.storedTimes())

	// The error state is informational: the next clean pass clears it.
	h.clk.Advance(time.Minute)
	h.coord.HandleDrained(task.DrainStats{Completed: 1})

	status = h.waitStatus(t)
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.Empty(t, status.LastSyncError)
	assert.True(t, status.LastSyncAt.Equal(h.clk.Now()))
}

func TestCoordinator_OfflineAbandonsPass(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})
	h.coord.HandleNetworkChange(true)
	require.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)

	h.coord.HandleNetworkChange(false)

	status := h.waitStatus(t)
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.True(t, status.LastSyncAt.IsZero())
	assert.Equal(t, []bool{true, false}, h.proc.onlineCalls())
	assert.Empty(t, h.st.storedTimes())
}

func TestCoordinator_SyncNow(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})
	h.coord.HandleNetworkChange(true)
	require.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)
	h.coord.HandleDrained(task.DrainStats{})
	require.Equal(t, domain.SyncStateIdle, h.waitStatus(t).State)

	status := h.coord.SyncNow()
	assert.Equal(t, domain.SyncStateSyncing, status.State)
	assert.Equal(t, 1, h.proc.kickCount())
	assert.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)

	// Requesting again while a pass is running is a no-op.
	status = h.coord.SyncNow()
	assert.Equal(t, domain.SyncStateSyncing, status.State)
	assert.Equal(t, 1, h.proc.kickCount())
	assert.Empty(t, h.statuses)
}

func TestCoordinator_SyncNowOfflineNoOp(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})

	status := h.coord.SyncNow()
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.Zero(t, h.proc.kickCount())
	assert.Empty(t, h.statuses)
}

func TestCoordinator_PersistFailureKeepsInMemoryStatus(t *testing.T) {
	t.Parallel()

	h := newCoordHarness(t, time.Time{})
	h.st.err = errors.New("disk full")
	h.coord.HandleNetworkChange(true)
	require.Equal(t, domain.SyncStateSyncing, h.waitStatus(t).State)

	h.coord.HandleDrained(task.DrainStats{Completed: 1})

	status := h.waitStatus(t)
	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.True(t, status.LastSyncAt.Equal(h.clk.Now()))
}
