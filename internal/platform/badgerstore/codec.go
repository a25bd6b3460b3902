package badgerstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// schemaVersion is written to the metadata record so a future layout
// change can detect and migrate older databases.
const schemaVersion = 1

// metaRecord is the single metadata record kept alongside task records.
// It is rewritten in the same transaction as every mutation, so usage
// accounting stays exact across crashes.
type metaRecord struct {
	SchemaVersion int       `json:"schema_version"`
	UsageBytes    int64     `json:"usage_bytes"`
	LastSyncAt    time.Time `json:"last_sync_at"`
}

func encodeTask(task *domain.Task) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	return data, nil
}

// decodeTask turns a stored record back into a task. A record that does
// not parse or does not validate is reported as corrupt; scans skip
// such records rather than failing.
func decodeTask(data []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorruptRecord, err)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorruptRecord, err)
	}
	task.SizeBytes = int64(len(data))
	return &task, nil
}

func encodeMeta(meta metaRecord) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeMeta(data []byte) (metaRecord, error) {
	var meta metaRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaRecord{}, fmt.Errorf("%w: metadata: %v", store.ErrCorruptRecord, err)
	}
	return meta, nil
}
