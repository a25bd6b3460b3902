package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// Store implements the store.TaskStore interface using BadgerDB. All
// mutations run through a single mutex-serialized transaction that
// commits the task record, the ready index, and the metadata record
// together, so the three can never disagree on disk.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	maxBytes int64
	gc       *gcRunner

	mu         sync.Mutex
	reclaimer  store.Reclaimer
	usage      int64
	lastSyncAt time.Time
	closed     bool
}

// Open opens (or creates) a task store with the given configuration.
// If the metadata record is missing or unreadable, usage accounting and
// the ready index are rebuilt from the task records.
func Open(cfg Config) (*Store, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "badger_store"))

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:       db,
		logger:   log,
		maxBytes: cfg.MaxStorageBytes,
	}

	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, log)
		s.gc.start()
	}

	log.Info("task store opened",
		"path", cfg.Path,
		"in_memory", cfg.InMemory,
		"usage_bytes", s.usage,
		"max_storage_bytes", cfg.MaxStorageBytes)
	return s, nil
}

// SetReclaimer installs the hook invoked when a write would exceed the
// storage budget. Must be called before the store takes writes that can
// run over budget.
func (s *Store) SetReclaimer(r store.Reclaimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimer = r
}

// recover loads the metadata record, falling back to a full rebuild
// when it is missing (fresh database) or unreadable.
func (s *Store) recover() error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		meta, err := decodeMeta(data)
		if err != nil {
			return err
		}
		if meta.SchemaVersion > schemaVersion {
			return fmt.Errorf(
				"database schema version %d is newer than supported version %d",
				meta.SchemaVersion, schemaVersion)
		}
		s.usage = meta.UsageBytes
		s.lastSyncAt = meta.LastSyncAt
		return nil
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) && !store.IsCorruptRecordError(err) {
		return fmt.Errorf("failed to load store metadata: %w", err)
	}
	if store.IsCorruptRecordError(err) {
		s.logger.Warn("store metadata unreadable, rebuilding", "error", err)
	}
	return s.rebuild()
}

// rebuild derives the metadata record and the ready index from the task
// records alone. Corrupt records are skipped but their bytes still
// count against the budget, since they occupy space until removed.
func (s *Store) rebuild() error {
	var (
		usage   int64
		corrupt int
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		stale, err := collectKeys(txn, readyPrefix)
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return mapError(err)
			}
		}

		var pending [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = taskPrefix
		it := txn.NewIterator(opts)
		for it.Seek(taskPrefix); it.ValidForPrefix(taskPrefix); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return mapError(err)
			}
			usage += int64(len(data))

			task, err := decodeTask(data)
			if err != nil {
				corrupt++
				s.logger.Warn("skipping corrupt task record during recovery",
					"key", fmt.Sprintf("%x", item.Key()),
					"error", err)
				continue
			}
			if task.Status == domain.TaskStatusPending {
				pending = append(pending, readyKey(task.ReadyAt, task.ID))
			}
		}
		it.Close()

		for _, key := range pending {
			if err := txn.Set(key, nil); err != nil {
				return mapError(err)
			}
		}

		data, err := encodeMeta(metaRecord{
			SchemaVersion: schemaVersion,
			UsageBytes:    usage,
			LastSyncAt:    s.lastSyncAt,
		})
		if err != nil {
			return err
		}
		return mapError(txn.Set(metaKey, data))
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild store metadata: %w", err)
	}

	s.usage = usage
	if usage > 0 || corrupt > 0 {
		s.logger.Info("rebuilt store metadata",
			"usage_bytes", usage,
			"corrupt_records", corrupt)
	}
	return nil
}

// update runs fn inside the serialized write transaction and commits
// the refreshed metadata record alongside whatever fn changed. Nothing
// is persisted when fn returns an error.
func (s *Store) update(ctx context.Context, operation string, fn func(m *mutator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	m := &mutator{store: s, txn: txn}
	if err := fn(m); err != nil {
		return err
	}

	meta := metaRecord{
		SchemaVersion: schemaVersion,
		UsageBytes:    s.usage + m.delta,
		LastSyncAt:    s.lastSyncAt,
	}
	if m.lastSyncAt != nil {
		meta.LastSyncAt = *m.lastSyncAt
	}
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	if err := txn.Set(metaKey, data); err != nil {
		return mapError(err)
	}

	if err := txn.Commit(); err != nil {
		return store.NewStoreError("task", operation, "failed to commit transaction", mapError(err))
	}

	s.usage += m.delta
	if m.lastSyncAt != nil {
		s.lastSyncAt = *m.lastSyncAt
	}
	return nil
}

// view runs fn in a read-only transaction over a consistent snapshot.
func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return store.ErrStoreClosed
	}
	return s.db.View(fn)
}

// Put persists a new task, enforcing the storage budget. When the write
// does not fit, the configured reclaimer runs first; the write fails
// with store.ErrQuotaExceeded only if space still cannot be found.
func (s *Store) Put(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	err := s.update(ctx, "put", func(m *mutator) error {
		if _, err := m.txn.Get(taskKey(task.ID)); err == nil {
			return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return mapError(err)
		}

		data, err := encodeTask(task)
		if err != nil {
			return err
		}
		if err := m.ensureCapacity(ctx, int64(len(data))); err != nil {
			return err
		}
		return m.putRecord(task, data)
	})
	if err != nil {
		log.Error("failed to put task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return err
	}
	return nil
}

// Get retrieves a detached copy of a task by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var task *domain.Task
	err := s.view(func(txn *badger.Txn) error {
		found, err := getTask(txn, id)
		if err != nil {
			return err
		}
		task = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Update saves changes to an existing task, keeping the ready index and
// usage accounting in step. Result growth is never rejected: an update
// may push usage past the budget, which the next eviction sweep works
// back down.
func (s *Store) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	err := s.update(ctx, "update", func(m *mutator) error {
		return m.Update(task)
	})
	if err != nil {
		log.Error("failed to update task",
			"task_id", task.ID,
			"task_status", task.Status,
			"error", err)
		return err
	}
	return nil
}

// Delete removes a task and releases its bytes.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	err := s.update(ctx, "delete", func(m *mutator) error {
		return m.Remove(id)
	})
	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to delete task", "task_id", id, "error", err)
		}
		return err
	}
	return nil
}

// List retrieves tasks matching the filter in submission order.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	var tasks []*domain.Task
	err := s.view(func(txn *badger.Txn) error {
		found, _, err := scanTasks(txn, filter, log)
		if err != nil {
			return err
		}
		tasks = found
		return nil
	})
	if err != nil {
		log.Error("failed to list tasks", "error", err)
		return nil, err
	}
	return tasks, nil
}

// ClaimReady atomically pops the oldest ready pending task and marks it
// processing. Index entries that point at missing, corrupt, or
// no-longer-pending records are dropped along the way.
func (s *Store) ClaimReady(ctx context.Context, now time.Time) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	var claimed *domain.Task
	err := s.update(ctx, "claim", func(m *mutator) error {
		task, err := m.claimReady(now)
		if err != nil {
			return err
		}
		claimed = task
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNoTaskReady) {
			log.Error("failed to claim task", "error", err)
		}
		return nil, err
	}
	return claimed, nil
}

// NextReadyAt returns the ReadyAt of the oldest pending task, ripe or
// not. Returns store.ErrNoTaskReady when no pending tasks exist.
func (s *Store) NextReadyAt(ctx context.Context) (time.Time, error) {
	var next time.Time
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = readyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(readyPrefix); it.ValidForPrefix(readyPrefix); it.Next() {
			readyAt, id, err := parseReadyKey(it.Item().KeyCopy(nil))
			if err != nil {
				continue // claim drops malformed entries
			}
			task, err := getTask(txn, id)
			if err != nil || task.Status != domain.TaskStatusPending {
				continue
			}
			next = readyAt
			return nil
		}
		return store.ErrNoTaskReady
	})
	if err != nil {
		return time.Time{}, err
	}
	return next, nil
}

// Snapshot scans the whole store within one read transaction and
// returns its contents plus usage and sync metadata.
func (s *Store) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	log := logger.FromContext(ctx)

	snap := &store.Snapshot{}
	err := s.view(func(txn *badger.Txn) error {
		tasks, corrupt, err := scanTasks(txn, store.ListFilter{}, log)
		if err != nil {
			return err
		}
		snap.Tasks = tasks
		snap.CorruptRecords = corrupt

		item, err := txn.Get(metaKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				snap.Budget = domain.StorageBudget{MaxStorageBytes: s.maxBytes}
				return nil
			}
			return mapError(err)
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return mapError(err)
		}
		meta, err := decodeMeta(data)
		if err != nil {
			return err
		}
		snap.Budget = domain.StorageBudget{
			MaxStorageBytes:   s.maxBytes,
			CurrentUsageBytes: meta.UsageBytes,
		}
		snap.LastSyncAt = meta.LastSyncAt
		return nil
	})
	if err != nil {
		log.Error("failed to snapshot store", "error", err)
		return nil, err
	}
	return snap, nil
}

// Usage returns the current storage budget state from the in-memory
// accounting, which mirrors the persisted metadata record.
func (s *Store) Usage(ctx context.Context) (domain.StorageBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.StorageBudget{}, store.ErrStoreClosed
	}
	return domain.StorageBudget{
		MaxStorageBytes:   s.maxBytes,
		CurrentUsageBytes: s.usage,
	}, nil
}

// SetLastSyncAt durably records when the most recent clean sync pass
// finished.
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return s.update(ctx, "set_last_sync", func(m *mutator) error {
		utc := at.UTC()
		m.lastSyncAt = &utc
		return nil
	})
}

// Mutate runs fn with exclusive access to the write path. Changes made
// through the Mutator commit atomically when fn returns nil.
func (s *Store) Mutate(ctx context.Context, fn func(m store.Mutator) error) error {
	return s.update(ctx, "mutate", func(m *mutator) error {
		return fn(m)
	})
}

// Close stops background maintenance and closes the database. Later
// operations return store.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.gc != nil {
		s.gc.stop()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	s.logger.Info("task store closed")
	return nil
}

// getTask reads and decodes one task record within txn.
func getTask(txn *badger.Txn, id uuid.UUID) (*domain.Task, error) {
	item, err := txn.Get(taskKey(id))
	if err != nil {
		return nil, mapTaskError(err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, mapError(err)
	}
	return decodeTask(data)
}

// scanTasks iterates all task records in key order, applying the
// filter. Corrupt records are logged, counted, and skipped.
func scanTasks(txn *badger.Txn, filter store.ListFilter, log *slog.Logger) ([]*domain.Task, int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = taskPrefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var (
		tasks   []*domain.Task
		corrupt int
	)
	for it.Seek(taskPrefix); it.ValidForPrefix(taskPrefix); it.Next() {
		item := it.Item()
		data, err := item.ValueCopy(nil)
		if err != nil {
			return nil, corrupt, mapError(err)
		}
		task, err := decodeTask(data)
		if err != nil {
			corrupt++
			log.Warn("skipping corrupt task record",
				"key", fmt.Sprintf("%x", item.Key()),
				"error", err)
			continue
		}
		if !filter.Matches(task) {
			continue
		}
		tasks = append(tasks, task)
		if filter.Limit > 0 && len(tasks) >= filter.Limit {
			break
		}
	}
	return tasks, corrupt, nil
}

// collectKeys gathers every key under prefix so the caller can mutate
// them after the iterator is closed.
func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}
