package domain

import "time"

// StorageBudget describes the byte budget of the durable store.
// CurrentUsageBytes is maintained on the store's write path and always
// equals the sum of SizeBytes across persisted tasks.
type StorageBudget struct {
	MaxStorageBytes   int64 `json:"max_storage_bytes"`
	CurrentUsageBytes int64 `json:"current_usage_bytes"`
}

// UsageRatio returns the fraction of the budget in use, or 0 when no
// budget is configured.
func (b StorageBudget) UsageRatio() float64 {
	if b.MaxStorageBytes <= 0 {
		return 0
	}
	return float64(b.CurrentUsageBytes) / float64(b.MaxStorageBytes)
}

// Statistics is a point-in-time projection over the task store. It is
// computed by scanning persisted tasks on demand; there is no separately
// maintained counter state that could drift from the store.
type Statistics struct {
	TotalTasks      int `json:"total_tasks"`
	PendingTasks    int `json:"pending_tasks"`
	ProcessingTasks int `json:"processing_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	FailedTasks     int `json:"failed_tasks"`

	// CorruptRecords counts persisted records that could not be decoded
	// and were skipped during the scan.
	CorruptRecords int `json:"corrupt_records"`

	Storage StorageBudget `json:"storage"`

	Sync SyncStatus `json:"sync"`

	// GeneratedAt is when the projection was taken.
	GeneratedAt time.Time `json:"generated_at"`
}
