package eviction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

var terminalFilter = store.ListFilter{
	Statuses: []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed},
}

// Manager applies the eviction policy. It runs a periodic sweep that
// removes expired tasks, serves explicit cleanup requests, and
// implements store.Reclaimer for the quota-pressure path.
type Manager struct {
	store  store.TaskStore
	policy Policy
	clock  clock.Clock
	bus    *events.Bus
	logger *slog.Logger

	sweepInterval time.Duration
	ctx           context.Context
	cancelFunc    context.CancelFunc
	wg            sync.WaitGroup
}

// NewManager creates a Manager sweeping every sweepInterval. A
// non-positive interval defaults to one hour.
func NewManager(st store.TaskStore, policy Policy, clk clock.Clock, bus *events.Bus, logger *slog.Logger, sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		store:         st,
		policy:        policy,
		clock:         clk,
		bus:           bus,
		logger:        logger.With("component", "eviction_manager"),
		sweepInterval: sweepInterval,
		ctx:           ctx,
		cancelFunc:    cancel,
	}
}

// Start launches the periodic sweep.
func (m *Manager) Start() error {
	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop halts the sweep and waits for it to finish.
func (m *Manager) Stop() {
	m.cancelFunc()
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C():
			if _, err := m.CleanupExpired(m.ctx); err != nil {
				m.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// CleanupExpired removes every terminal task older than the retention
// TTL and returns how many were removed. Removal events are published
// after the deletes commit.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()

	var removed []*domain.Task
	err := m.store.Mutate(ctx, func(mut store.Mutator) error {
		tasks, err := mut.Tasks(terminalFilter)
		if err != nil {
			return err
		}
		removed = removed[:0]
		for _, t := range m.policy.Expired(tasks, now) {
			if err := mut.Remove(t.ID); err != nil {
				return err
			}
			removed = append(removed, t)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(removed) > 0 {
		var freed int64
		for _, t := range removed {
			freed += t.SizeBytes
		}
		m.logger.Info("expired tasks removed", "count", len(removed), "freed_bytes", freed)
		removedTotal.WithLabelValues(reasonExpired).Add(float64(len(removed)))
		for _, t := range removed {
			m.bus.Publish(events.TaskUpdatedEvent{Task: t, Removed: true, At: now})
		}
	}
	return len(removed), nil
}

// Reclaim implements store.Reclaimer. It runs inside the store's write
// path; the surrounding transaction may still fail, so no removal
// events are published from here.
func (m *Manager) Reclaim(ctx context.Context, mut store.Mutator, incoming int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tasks, err := mut.Tasks(terminalFilter)
	if err != nil {
		return 0, err
	}

	plan := m.policy.ReclaimPlan(tasks, mut.Usage(), incoming, m.clock.Now())
	var freed int64
	for _, t := range plan {
		if err := mut.Remove(t.ID); err != nil {
			return freed, err
		}
		freed += t.SizeBytes
	}
	if len(plan) > 0 {
		removedTotal.WithLabelValues(reasonQuota).Add(float64(len(plan)))
	}
	return freed, nil
}
