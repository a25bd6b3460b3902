// Package syncer coordinates drain passes against the remote service.
// The Coordinator owns the device's sync status: it reacts to debounced
// connectivity changes, marks passes as syncing while the processor
// works through the backlog, and records the completion time of every
// clean pass.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/task"
)

// Store is the slice of the task store the coordinator persists
// sync bookkeeping through.
type Store interface {
	// SetLastSyncAt records the completion time of a clean drain pass.
	SetLastSyncAt(ctx context.Context, at time.Time) error
}

// Processor is the slice of the task processor the coordinator drives.
type Processor interface {
	// SetOnline tells the processor whether it may claim work.
	SetOnline(online bool)

	// Kick wakes idle workers for an immediate pass.
	Kick()
}

// Coordinator tracks sync state across connectivity changes and drain
// passes. Wire its HandleNetworkChange to the network monitor and its
// HandleDrained to the processor's drain handler.
type Coordinator struct {
	store  Store
	proc   Processor
	clock  clock.Clock
	bus    *events.Bus
	logger *slog.Logger

	mu     sync.Mutex
	online bool
	status domain.SyncStatus
}

// New creates a Coordinator. lastSyncAt carries the persisted completion
// time of the most recent clean pass, zero if none has happened yet.
func New(st Store, proc Processor, clk clock.Clock, bus *events.Bus, logger *slog.Logger, lastSyncAt time.Time) *Coordinator {
	return &Coordinator{
		store:  st,
		proc:   proc,
		clock:  clk,
		bus:    bus,
		logger: logger.With("component", "sync_coordinator"),
		status: domain.SyncStatus{
			State:      domain.SyncStateIdle,
			LastSyncAt: lastSyncAt,
		},
	}
}

// Status returns a snapshot of the current sync status.
func (c *Coordinator) Status() domain.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// HandleNetworkChange reacts to a debounced connectivity transition.
// Going online starts a sync pass; going offline while a pass is running
// abandons it without recording a sync time.
func (c *Coordinator) HandleNetworkChange(online bool) {
	c.mu.Lock()
	if online == c.online {
		c.mu.Unlock()
		return
	}
	c.online = online

	changed := false
	if online {
		if c.status.State != domain.SyncStateSyncing {
			c.status.State = domain.SyncStateSyncing
			c.status.LastSyncError = ""
			changed = true
		}
	} else if c.status.State == domain.SyncStateSyncing {
		c.status.State = domain.SyncStateIdle
		changed = true
	}
	snapshot := c.status
	c.mu.Unlock()

	c.logger.Info("connectivity changed", "online", online, "state", snapshot.State)

	// Publish before waking the processor so the syncing status is on the
	// bus ahead of the pass's own events.
	if changed {
		c.publish(snapshot)
	}
	c.proc.SetOnline(online)
}

// HandleDrained records the outcome of a finished pass. A pass with no
// permanent failures is clean: the coordinator returns to idle and
// persists the sync time. Permanent failures move it to the error state
// instead, leaving LastSyncAt untouched.
func (c *Coordinator) HandleDrained(stats task.DrainStats) {
	now := c.clock.Now()
	clean := stats.Failed == 0

	c.mu.Lock()
	if clean {
		c.status.State = domain.SyncStateIdle
		c.status.LastSyncError = ""
		c.status.LastSyncAt = now
	} else {
		c.status.State = domain.SyncStateError
		c.status.LastSyncError = fmt.Sprintf("%d tasks failed permanently in the last sync pass", stats.Failed)
	}
	snapshot := c.status
	c.mu.Unlock()

	if clean {
		if err := c.store.SetLastSyncAt(context.Background(), now); err != nil {
			c.logger.Error("failed to persist sync time", "error", err)
		}
		passesTotal.WithLabelValues(passClean).Inc()
	} else {
		passesTotal.WithLabelValues(passError).Inc()
	}

	c.logger.Info("sync pass finished",
		"completed", stats.Completed,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"state", snapshot.State)
	c.publish(snapshot)
}

// SyncNow requests an immediate pass and returns the resulting status.
// It is a no-op while offline or while a pass is already running.
func (c *Coordinator) SyncNow() domain.SyncStatus {
	c.mu.Lock()
	if !c.online || c.status.State == domain.SyncStateSyncing {
		snapshot := c.status
		c.mu.Unlock()
		return snapshot
	}
	c.status.State = domain.SyncStateSyncing
	c.status.LastSyncError = ""
	snapshot := c.status
	c.mu.Unlock()

	c.logger.Info("manual sync requested")
	c.publish(snapshot)
	c.proc.Kick()
	return snapshot
}

func (c *Coordinator) publish(status domain.SyncStatus) {
	c.bus.Publish(events.SyncStatusChangedEvent{Status: status, At: c.clock.Now()})
}
