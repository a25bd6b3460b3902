// Package eviction reclaims storage held by finished tasks. A pure
// Policy decides what to remove; the Manager applies it on a periodic
// sweep, on explicit cleanup requests, and synchronously inside the
// store's write path when a submission would exceed the byte budget.
// Pending and processing tasks are never candidates.
package eviction

import (
	"bytes"
	"sort"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

// Policy holds the retention and quota tuning for eviction decisions.
// All methods are pure; they never touch storage.
type Policy struct {
	// RetentionTTL is how long terminal tasks are kept after their last
	// update before they become expired.
	RetentionTTL time.Duration

	// TargetRatio is the usage fraction quota-pressure eviction aims
	// for, leaving headroom so the next few writes do not immediately
	// trigger another round.
	TargetRatio float64
}

// DefaultPolicy returns the standard tuning: one week of retention and
// a 90% usage target.
func DefaultPolicy() Policy {
	return Policy{
		RetentionTTL: 168 * time.Hour,
		TargetRatio:  0.9,
	}
}

// Expired returns the terminal tasks whose last update is older than
// the retention TTL, oldest first.
func (p Policy) Expired(tasks []*domain.Task, now time.Time) []*domain.Task {
	var expired []*domain.Task
	for _, t := range tasks {
		if t.IsTerminal() && now.Sub(t.UpdatedAt) > p.RetentionTTL {
			expired = append(expired, t)
		}
	}
	sortOldestFirst(expired)
	return expired
}

// ReclaimPlan returns the tasks to delete so that an incoming write of
// the given size fits within the budget and usage drops to the target
// ratio. Expired terminal tasks go first, oldest first; if they are not
// enough, the plan widens to all terminal tasks. An empty plan means
// either nothing needs to be freed or nothing is eligible.
func (p Policy) ReclaimPlan(tasks []*domain.Task, budget domain.StorageBudget, incoming int64, now time.Time) []*domain.Task {
	if budget.MaxStorageBytes <= 0 {
		return nil
	}

	target := int64(float64(budget.MaxStorageBytes) * p.TargetRatio)
	usage := budget.CurrentUsageBytes
	satisfied := func() bool {
		return usage <= target && usage+incoming <= budget.MaxStorageBytes
	}
	if satisfied() {
		return nil
	}

	var expired, fresh []*domain.Task
	for _, t := range tasks {
		if !t.IsTerminal() {
			continue
		}
		if now.Sub(t.UpdatedAt) > p.RetentionTTL {
			expired = append(expired, t)
		} else {
			fresh = append(fresh, t)
		}
	}
	sortOldestFirst(expired)
	sortOldestFirst(fresh)

	var plan []*domain.Task
	for _, t := range append(expired, fresh...) {
		if satisfied() {
			break
		}
		plan = append(plan, t)
		usage -= t.SizeBytes
	}
	return plan
}

func sortOldestFirst(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].UpdatedAt.Equal(tasks[j].UpdatedAt) {
			return bytes.Compare(tasks[i].ID[:], tasks[j].ID[:]) < 0
		}
		return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt)
	})
}
