// Package engine assembles the offline calculation queue into a single
// object with an explicit lifecycle. New wires the durable store, the
// task queue and processor, the network monitor, the sync coordinator,
// and the eviction manager together; Start brings the background work
// up, Stop tears it down in dependency order. The methods on Engine are
// the operations the agent API exposes.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/calc"
	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/eviction"
	"github.com/zinses-rechner/calcsync/internal/netmon"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/stats"
	"github.com/zinses-rechner/calcsync/internal/store"
	"github.com/zinses-rechner/calcsync/internal/syncer"
	"github.com/zinses-rechner/calcsync/internal/task"
)

// Options configures an Engine. Store, Executors, and Probe are
// required; everything else has working defaults.
type Options struct {
	// Store is the durable task store. The engine installs its eviction
	// manager as the store's reclaimer but never closes the store; the
	// caller owns its lifecycle.
	Store store.TaskStore

	// Executors maps task types to the executor that performs them.
	// Submissions of an unlisted type are rejected.
	Executors map[string]task.Executor

	// Probe is the connectivity check the network monitor runs.
	Probe netmon.Probe

	// Clock drives all timing. Defaults to the system clock.
	Clock clock.Clock

	// Logger receives engine logging. Defaults to slog.Default().
	Logger *slog.Logger

	// DefaultMaxRetries is the retry budget for submissions that leave
	// it unspecified. Zero or negative takes domain.DefaultMaxRetries.
	DefaultMaxRetries int

	// Processor tunes workers, retry backoff, and the per-attempt
	// deadline. Zero fields take the processor's own defaults.
	Processor task.ProcessorConfig

	// Monitor tunes the connectivity probe cadence and debounce window.
	Monitor netmon.Config

	// Eviction tunes retention and the quota-pressure usage target. The
	// zero value takes eviction.DefaultPolicy.
	Eviction eviction.Policy

	// SweepInterval is how often expired terminal tasks are cleaned up.
	// If zero, defaults to one hour.
	SweepInterval time.Duration
}

// Engine owns the offline queue subsystem. Construct it with New, call
// Start once, and Stop when shutting down. All exported methods are safe
// for concurrent use.
type Engine struct {
	store          store.TaskStore
	executors      map[string]task.Executor
	clock          clock.Clock
	logger         *slog.Logger
	defaultRetries int

	bus       *events.Bus
	queue     *task.Queue
	processor *task.Processor
	monitor   *netmon.Monitor
	coord     *syncer.Coordinator
	evictor   *eviction.Manager
	reporter  *stats.Reporter
}

// New wires an engine over the given store. It reads the store's
// metadata once to seed the sync state; startup recovery of interrupted
// tasks happens in Start.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: a task store is required")
	}
	if len(opts.Executors) == 0 {
		return nil, errors.New("engine: at least one executor is required")
	}
	if opts.Probe == nil {
		return nil, errors.New("engine: a connectivity probe is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Eviction == (eviction.Policy{}) {
		opts.Eviction = eviction.DefaultPolicy()
	}
	if opts.DefaultMaxRetries <= 0 {
		opts.DefaultMaxRetries = domain.DefaultMaxRetries
	}

	snap, err := opts.Store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store snapshot: %w", err)
	}

	bus := events.NewBus(opts.Logger)
	queue := task.NewQueue(opts.Store, opts.Clock, opts.Logger)
	processor := task.NewProcessor(opts.Store, queue, opts.Clock, bus, opts.Processor, opts.Logger)
	for taskType, executor := range opts.Executors {
		processor.Register(taskType, executor)
	}

	evictor := eviction.NewManager(opts.Store, opts.Eviction, opts.Clock, bus, opts.Logger, opts.SweepInterval)
	opts.Store.SetReclaimer(evictor)

	coord := syncer.New(opts.Store, processor, opts.Clock, bus, opts.Logger, snap.LastSyncAt)
	processor.SetDrainHandler(coord.HandleDrained)

	monitor := netmon.NewMonitor(opts.Probe, opts.Clock, opts.Monitor, opts.Logger)
	monitor.Subscribe(func(online bool) {
		// The network event goes on the bus before the coordinator acts,
		// so subscribers see the cause ahead of the sync status it triggers.
		bus.Publish(events.NetworkChangedEvent{Online: online, At: opts.Clock.Now()})
		coord.HandleNetworkChange(online)
	})

	return &Engine{
		store:          opts.Store,
		executors:      opts.Executors,
		clock:          opts.Clock,
		logger:         opts.Logger.With("component", "engine"),
		defaultRetries: opts.DefaultMaxRetries,
		bus:            bus,
		queue:          queue,
		processor:      processor,
		monitor:        monitor,
		coord:          coord,
		evictor:        evictor,
		reporter:       stats.NewReporter(opts.Store, coord.Status, opts.Clock),
	}, nil
}

// Start recovers tasks interrupted by a previous shutdown, then brings
// up the eviction sweep, the workers, and the network monitor. The
// monitor starts last so the first online transition finds a running
// processor.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recovering interrupted tasks: %w", err)
	}
	if err := e.evictor.Start(); err != nil {
		return err
	}
	if err := e.processor.Start(); err != nil {
		return err
	}
	if err := e.monitor.Start(); err != nil {
		return err
	}
	e.logger.Info("engine started")
	return nil
}

// Stop shuts the engine down: connectivity monitoring stops first so no
// new drain begins, the in-flight attempt (if any) finishes and is
// persisted, then the sweep, queue, and event bus close. The store stays
// open for the caller.
func (e *Engine) Stop() {
	e.monitor.Stop()
	e.processor.Stop()
	e.evictor.Stop()
	e.queue.Close()
	e.bus.Close()
	e.logger.Info("engine stopped")
}

// recoverInterrupted returns tasks left processing by a crash or kill to
// pending. Requeue keeps ReadyAt, so recovered tasks hold their place in
// line and the interrupted attempt costs no retry.
func (e *Engine) recoverInterrupted(ctx context.Context) error {
	var requeued []*domain.Task
	err := e.store.Mutate(ctx, func(m store.Mutator) error {
		stuck, err := m.Tasks(store.ListFilter{
			Statuses: []domain.TaskStatus{domain.TaskStatusProcessing},
		})
		if err != nil {
			return err
		}
		now := e.clock.Now()
		for _, t := range stuck {
			if err := t.Requeue(now); err != nil {
				return fmt.Errorf("requeueing task %s: %w", t.ID, err)
			}
			if err := m.Update(t); err != nil {
				return fmt.Errorf("persisting requeued task %s: %w", t.ID, err)
			}
			requeued = append(requeued, t)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(requeued) == 0 {
		return nil
	}

	e.logger.Info("requeued interrupted tasks", "count", len(requeued))
	for _, t := range requeued {
		e.bus.Publish(events.TaskUpdatedEvent{Task: t, At: e.clock.Now()})
	}
	return nil
}

// Submit validates and persists a new task, returning its detached
// snapshot. The payload must decode and validate for the task's type. If
// the write would exceed the storage budget, terminal tasks are evicted
// first; store.ErrQuotaExceeded is returned when that cannot free enough
// room. A negative maxRetries takes the engine's configured default.
func (e *Engine) Submit(ctx context.Context, taskType string, payload json.RawMessage, maxRetries int) (*domain.Task, error) {
	if _, ok := e.executors[taskType]; !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrNoExecutor, taskType)
	}
	if err := validatePayload(taskType, payload); err != nil {
		return nil, err
	}
	if maxRetries < 0 {
		maxRetries = e.defaultRetries
	}

	t, err := domain.NewTask(taskType, payload, maxRetries, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, t); err != nil {
		return nil, err
	}

	e.logger.Info("task submitted",
		"task_id", t.ID,
		"task_type", taskType,
		"max_retries", maxRetries)
	e.bus.Publish(events.TaskUpdatedEvent{Task: t.Clone(), At: e.clock.Now()})
	e.processor.Kick()
	return t, nil
}

// validatePayload rejects payloads the executor is guaranteed to fail
// on. Task types without a known schema pass through unchecked.
func validatePayload(taskType string, payload json.RawMessage) error {
	switch taskType {
	case domain.TaskTypeCompoundInterest:
		var req domain.CalculationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("%w: decoding calculation request: %v", domain.ErrValidation, err)
		}
		if err := calc.Validate(req); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
	}
	return nil
}

// GetTask returns a detached snapshot of the task, or
// store.ErrTaskNotFound.
func (e *Engine) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return e.store.Get(ctx, id)
}

// ListTasks returns detached snapshots of the tasks matching the filter.
func (e *Engine) ListTasks(ctx context.Context, filter store.ListFilter) ([]*domain.Task, error) {
	return e.store.List(ctx, filter)
}

// Cancel withdraws a task that has not finished. A pending task is
// removed outright. A processing task is cancelled cooperatively: the
// in-flight attempt runs to completion and its outcome is discarded.
// Returns store.ErrTaskNotFound for unknown ids and
// domain.ErrTaskNotCancellable once a task is terminal.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) error {
	var (
		removed  *domain.Task
		inFlight bool
	)
	err := e.store.Mutate(ctx, func(m store.Mutator) error {
		t, err := m.Get(id)
		if err != nil {
			return err
		}
		switch t.Status {
		case domain.TaskStatusPending:
			if err := m.Remove(id); err != nil {
				return err
			}
			removed = t
		case domain.TaskStatusProcessing:
			inFlight = true
		default:
			return fmt.Errorf("%w: task %s is %s", domain.ErrTaskNotCancellable, id, t.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if inFlight {
		// The attempt may finish between the status read above and this
		// call; the caller then learns the task is no longer cancellable.
		return e.processor.RequestCancel(id)
	}

	e.logger.Info("task cancelled", "task_id", id)
	e.bus.Publish(events.TaskUpdatedEvent{Task: removed, Removed: true, At: e.clock.Now()})
	return nil
}

// Statistics scans the store and returns current queue aggregates.
func (e *Engine) Statistics(ctx context.Context) (*domain.Statistics, error) {
	return e.reporter.Statistics(ctx)
}

// SyncStatus returns the coordinator's current aggregate state.
func (e *Engine) SyncStatus() domain.SyncStatus {
	return e.coord.Status()
}

// SyncNow requests an immediate drain pass and returns the resulting
// status. It is a no-op while offline or already syncing.
func (e *Engine) SyncNow() domain.SyncStatus {
	return e.coord.SyncNow()
}

// CleanupExpired removes terminal tasks older than the retention TTL and
// returns how many were removed.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	return e.evictor.CleanupExpired(ctx)
}

// IsOnline returns the debounced connectivity state.
func (e *Engine) IsOnline() bool {
	return e.monitor.IsOnline()
}

// Events returns the engine's event bus for task, network, and sync
// status subscriptions.
func (e *Engine) Events() *events.Bus {
	return e.bus
}

// Reporter returns the statistics reporter, for wiring the Prometheus
// collector.
func (e *Engine) Reporter() *stats.Reporter {
	return e.reporter
}
