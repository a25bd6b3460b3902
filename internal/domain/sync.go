package domain

import "time"

// SyncState represents the coordinator's current relationship with the
// remote calculation service.
type SyncState string

// Possible sync states.
const (
	// SyncStateIdle means no drain is in progress. This is the state both
	// before the first online transition and after a fully successful pass.
	SyncStateIdle SyncState = "idle"

	// SyncStateSyncing means a drain of the pending queue is in progress.
	SyncStateSyncing SyncState = "syncing"

	// SyncStateError means the last drain finished but at least one task
	// ended terminally failed. It is informational: future drains still run.
	SyncStateError SyncState = "error"
)

// SyncStatus is a snapshot of the sync coordinator's state.
type SyncStatus struct {
	State SyncState `json:"state"`

	// LastSyncAt is the completion time of the most recent drain that
	// finished without terminal failures. Zero until the first such drain.
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`

	// LastSyncError describes why the last drain ended in SyncStateError.
	// Empty while State is not SyncStateError.
	LastSyncError string `json:"last_sync_error,omitempty"`
}
