package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// mutator is the store.Mutator handed to write-path callbacks. It
// tracks the usage delta of everything done through it; the delta is
// folded into the metadata record and the in-memory accounting when the
// surrounding transaction commits.
type mutator struct {
	store      *Store
	txn        *badger.Txn
	delta      int64
	lastSyncAt *time.Time
}

func (m *mutator) Get(id uuid.UUID) (*domain.Task, error) {
	return getTask(m.txn, id)
}

func (m *mutator) Tasks(filter store.ListFilter) ([]*domain.Task, error) {
	tasks, _, err := scanTasks(m.txn, filter, m.store.logger)
	return tasks, err
}

func (m *mutator) Update(task *domain.Task) error {
	old, oldSize, err := m.lookup(task.ID)
	if err != nil {
		return err
	}

	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := m.txn.Set(taskKey(task.ID), data); err != nil {
		return mapError(err)
	}

	if old != nil && old.Status == domain.TaskStatusPending {
		if err := m.txn.Delete(readyKey(old.ReadyAt, old.ID)); err != nil {
			return mapError(err)
		}
	}
	if task.Status == domain.TaskStatusPending {
		if err := m.txn.Set(readyKey(task.ReadyAt, task.ID), nil); err != nil {
			return mapError(err)
		}
	}

	task.SizeBytes = int64(len(data))
	m.delta += int64(len(data)) - oldSize
	return nil
}

func (m *mutator) Remove(id uuid.UUID) error {
	old, oldSize, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := m.txn.Delete(taskKey(id)); err != nil {
		return mapError(err)
	}
	if old != nil && old.Status == domain.TaskStatusPending {
		if err := m.txn.Delete(readyKey(old.ReadyAt, old.ID)); err != nil {
			return mapError(err)
		}
	}
	m.delta -= oldSize
	return nil
}

func (m *mutator) Usage() domain.StorageBudget {
	return domain.StorageBudget{
		MaxStorageBytes:   m.store.maxBytes,
		CurrentUsageBytes: m.store.usage + m.delta,
	}
}

// lookup returns the decoded record and its stored size. A record that
// exists but does not decode comes back as (nil, size, nil): the caller
// can still replace or remove it, it just cannot read the old contents.
func (m *mutator) lookup(id uuid.UUID) (*domain.Task, int64, error) {
	item, err := m.txn.Get(taskKey(id))
	if err != nil {
		return nil, 0, mapTaskError(err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, 0, mapError(err)
	}
	task, err := decodeTask(data)
	if err != nil {
		m.store.logger.Warn("encountered corrupt task record", "task_id", id, "error", err)
		return nil, int64(len(data)), nil
	}
	return task, int64(len(data)), nil
}

// putRecord writes a validated new task and, when pending, its ready
// index entry.
func (m *mutator) putRecord(task *domain.Task, data []byte) error {
	if err := m.txn.Set(taskKey(task.ID), data); err != nil {
		return mapError(err)
	}
	if task.Status == domain.TaskStatusPending {
		if err := m.txn.Set(readyKey(task.ReadyAt, task.ID), nil); err != nil {
			return mapError(err)
		}
	}
	task.SizeBytes = int64(len(data))
	m.delta += int64(len(data))
	return nil
}

// ensureCapacity checks that incoming bytes fit the budget, invoking
// the reclaimer once if they do not.
func (m *mutator) ensureCapacity(ctx context.Context, incoming int64) error {
	s := m.store
	if s.maxBytes <= 0 {
		return nil
	}
	if s.usage+m.delta+incoming <= s.maxBytes {
		return nil
	}

	if s.reclaimer != nil {
		freed, err := s.reclaimer.Reclaim(ctx, m, incoming)
		if err != nil {
			return fmt.Errorf("failed to reclaim storage: %w", err)
		}
		if freed > 0 {
			s.logger.Info("reclaimed storage for incoming write",
				"freed_bytes", freed,
				"incoming_bytes", incoming)
		}
	}

	if s.usage+m.delta+incoming > s.maxBytes {
		return fmt.Errorf("%w: need %d bytes with %d of %d in use",
			store.ErrQuotaExceeded, incoming, s.usage+m.delta, s.maxBytes)
	}
	return nil
}

// claimReady scans the ready index for the oldest ripe entry backed by
// a live pending record, marks that task processing, and removes its
// index entry. Unusable entries encountered before it are dropped.
func (m *mutator) claimReady(now time.Time) (*domain.Task, error) {
	var (
		claim    *domain.Task
		claimKey []byte
		oldSize  int64
		drops    [][]byte
	)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = readyPrefix

	it := m.txn.NewIterator(opts)
	for it.Seek(readyPrefix); it.ValidForPrefix(readyPrefix); it.Next() {
		key := it.Item().KeyCopy(nil)

		readyAt, id, err := parseReadyKey(key)
		if err != nil {
			m.store.logger.Warn("dropping malformed ready index entry", "error", err)
			drops = append(drops, key)
			continue
		}
		if readyAt.After(now) {
			break // entries are ordered; nothing further is ripe
		}

		task, size, lookupErr := m.lookup(id)
		switch {
		case lookupErr != nil && errors.Is(lookupErr, store.ErrTaskNotFound):
			m.store.logger.Warn("dropping ready index entry for missing task", "task_id", id)
			drops = append(drops, key)
			continue
		case lookupErr != nil:
			it.Close()
			return nil, lookupErr
		case task == nil:
			// Corrupt record; the bytes stay until removed explicitly.
			drops = append(drops, key)
			continue
		case task.Status != domain.TaskStatusPending:
			drops = append(drops, key)
			continue
		}

		claim, claimKey, oldSize = task, key, size
		break
	}
	it.Close()

	for _, key := range drops {
		if err := m.txn.Delete(key); err != nil {
			return nil, mapError(err)
		}
	}

	if claim == nil {
		return nil, store.ErrNoTaskReady
	}

	if err := claim.MarkProcessing(now); err != nil {
		return nil, err
	}
	data, err := encodeTask(claim)
	if err != nil {
		return nil, err
	}
	if err := m.txn.Set(taskKey(claim.ID), data); err != nil {
		return nil, mapError(err)
	}
	if err := m.txn.Delete(claimKey); err != nil {
		return nil, mapError(err)
	}

	claim.SizeBytes = int64(len(data))
	m.delta += int64(len(data)) - oldSize
	return claim, nil
}
