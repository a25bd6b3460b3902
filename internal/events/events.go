package events

import (
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

// Kind identifies the type of an event published on the Bus.
type Kind string

// Event kinds published by the engine.
const (
	KindTaskUpdated       Kind = "task_updated"
	KindNetworkChanged    Kind = "network_changed"
	KindSyncStatusChanged Kind = "sync_status_changed"
)

// Event is implemented by every event type published on the Bus.
type Event interface {
	// Kind returns the event's type, used for subscription routing.
	Kind() Kind

	// OccurredAt returns when the event happened, per the engine clock.
	OccurredAt() time.Time
}

// TaskUpdatedEvent is published whenever a task is created, changes
// status, or is removed. Task is a detached snapshot; receivers may
// retain it without affecting stored state. Removed marks events for
// tasks deleted by cancellation or eviction; the snapshot shows their
// last persisted state.
type TaskUpdatedEvent struct {
	Task    *domain.Task
	Removed bool
	At      time.Time
}

// Kind implements Event.
func (e TaskUpdatedEvent) Kind() Kind { return KindTaskUpdated }

// OccurredAt implements Event.
func (e TaskUpdatedEvent) OccurredAt() time.Time { return e.At }

// NetworkChangedEvent is published when the debounced connectivity state
// flips. Transitions shorter than the debounce window are never seen here.
type NetworkChangedEvent struct {
	Online bool
	At     time.Time
}

// Kind implements Event.
func (e NetworkChangedEvent) Kind() Kind { return KindNetworkChanged }

// OccurredAt implements Event.
func (e NetworkChangedEvent) OccurredAt() time.Time { return e.At }

// SyncStatusChangedEvent is published when the sync coordinator moves
// between idle, syncing, and error.
type SyncStatusChangedEvent struct {
	Status domain.SyncStatus
	At     time.Time
}

// Kind implements Event.
func (e SyncStatusChangedEvent) Kind() Kind { return KindSyncStatusChanged }

// OccurredAt implements Event.
func (e SyncStatusChangedEvent) OccurredAt() time.Time { return e.At }
