// Package stats projects read-only aggregates over the task store for
// observability consumers. Every report comes from a fresh scan; no
// counter state is maintained that could drift from stored truth.
package stats

import (
	"context"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// Store is the slice of the task store the reporter scans.
type Store interface {
	// Snapshot scans the entire store atomically.
	Snapshot(ctx context.Context) (*store.Snapshot, error)
}

// Reporter derives Statistics on demand.
type Reporter struct {
	store Store
	sync  func() domain.SyncStatus
	clock clock.Clock
}

// NewReporter creates a Reporter. syncStatus supplies the coordinator's
// current status; pass nil to fall back to the persisted sync time with
// an idle state.
func NewReporter(st Store, syncStatus func() domain.SyncStatus, clk clock.Clock) *Reporter {
	return &Reporter{
		store: st,
		sync:  syncStatus,
		clock: clk,
	}
}

// Statistics scans the store and returns a point-in-time projection.
func (r *Reporter) Statistics(ctx context.Context) (*domain.Statistics, error) {
	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.Statistics{
		TotalTasks:     len(snap.Tasks),
		CorruptRecords: snap.CorruptRecords,
		Storage:        snap.Budget,
		GeneratedAt:    r.clock.Now(),
	}
	for _, t := range snap.Tasks {
		switch t.Status {
		case domain.TaskStatusPending:
			stats.PendingTasks++
		case domain.TaskStatusProcessing:
			stats.ProcessingTasks++
		case domain.TaskStatusCompleted:
			stats.CompletedTasks++
		case domain.TaskStatusFailed:
			stats.FailedTasks++
		}
	}

	if r.sync != nil {
		stats.Sync = r.sync()
	} else {
		stats.Sync = domain.SyncStatus{
			State:      domain.SyncStateIdle,
			LastSyncAt: snap.LastSyncAt,
		}
	}
	return stats, nil
}

// scrapeTimeout bounds the store scan triggered by a metrics scrape.
const scrapeTimeout = 5 * time.Second
