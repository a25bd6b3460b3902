package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/events"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// ProcessorConfig holds configuration for the task processor
type ProcessorConfig struct {
	// Workers determines how many tasks may execute concurrently. Keep
	// at 1 (the default) unless every registered executor is documented
	// side-effect-free per task; with more workers, completion order is
	// no longer submission order.
	Workers int

	// BaseDelay is the backoff after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// ExecuteTimeout bounds a single execution attempt.
	ExecuteTimeout time.Duration

	// PollInterval is a safety-net wakeup for idle workers; normal paths
	// wake via kicks and ready timers. If zero, defaults to 30 seconds.
	PollInterval time.Duration
}

// DefaultProcessorConfig returns a ProcessorConfig with reasonable defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Workers:        1,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		ExecuteTimeout: 10 * time.Second,
		PollInterval:   30 * time.Second,
	}
}

// DrainStats summarizes one drain pass: everything that happened
// between the pass being kicked off and the pending queue emptying.
type DrainStats struct {
	Completed int
	Retried   int
	Failed    int
}

// Processor pulls ready tasks off the queue and runs them against
// registered executors, applying the retry policy on failure. It only
// claims work while online; if the network drops mid-execution the
// in-flight attempt still finishes.
type Processor struct {
	store     store.TaskStore
	queue     *Queue
	clock     clock.Clock
	bus       *events.Bus
	config    ProcessorConfig
	logger    *slog.Logger
	executors map[string]Executor

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	online atomic.Bool
	dirty  atomic.Bool

	mu        sync.Mutex
	inFlight  map[uuid.UUID]bool
	cancelled map[uuid.UUID]bool
	stats     DrainStats

	onDrained func(DrainStats)
}

// NewProcessor creates a Processor. Register executors and handlers
// before calling Start.
func NewProcessor(
	taskStore store.TaskStore,
	queue *Queue,
	clk clock.Clock,
	bus *events.Bus,
	config ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.ExecuteTimeout <= 0 {
		config.ExecuteTimeout = 10 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		store:      taskStore,
		queue:      queue,
		clock:      clk,
		bus:        bus,
		config:     config,
		logger:     logger.With("component", "task_processor"),
		executors:  make(map[string]Executor),
		ctx:        ctx,
		cancelFunc: cancel,
		inFlight:   make(map[uuid.UUID]bool),
		cancelled:  make(map[uuid.UUID]bool),
		onDrained:  func(DrainStats) {},
	}
}

// Register binds an executor to a task type. Must be called before Start.
func (p *Processor) Register(taskType string, executor Executor) {
	p.executors[taskType] = executor
}

// SetDrainHandler sets the callback invoked each time the pending queue
// fully empties after a kick or processed work. Must be called before
// Start.
func (p *Processor) SetDrainHandler(handler func(DrainStats)) {
	if handler != nil {
		p.onDrained = handler
	}
}

// SetOnline gates claiming. While offline, ready tasks stay queued and
// only the in-flight attempt (if any) finishes. Turning online kicks
// the queue so a waiting worker starts draining immediately.
func (p *Processor) SetOnline(online bool) {
	was := p.online.Swap(online)
	if online && !was {
		p.Kick()
	}
}

// Kick requests a drain attempt and guarantees a drain notification
// once the queue empties, even if no task was processed.
func (p *Processor) Kick() {
	p.dirty.Store(true)
	p.queue.Kick()
}

// Start launches the worker goroutines.
func (p *Processor) Start() error {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return nil
}

// Stop shuts the processor down gracefully: workers stop claiming, any
// in-flight attempt runs to completion (bounded by ExecuteTimeout), and
// its outcome is persisted before Stop returns.
func (p *Processor) Stop() {
	p.cancelFunc()
	p.wg.Wait()
}

// RequestCancel marks an executing task for cooperative cancellation:
// the current attempt runs to completion and its outcome is discarded,
// removing the task. Returns domain.ErrTaskNotCancellable if the task
// is not currently executing.
func (p *Processor) RequestCancel(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inFlight[id] {
		return domain.ErrTaskNotCancellable
	}
	p.cancelled[id] = true
	return nil
}

// worker claims and processes tasks until the processor stops
func (p *Processor) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("starting worker")

	for {
		if p.ctx.Err() != nil {
			logger.Debug("stopping worker")
			return
		}

		if !p.online.Load() {
			if err := p.queue.WaitKick(p.ctx); err != nil {
				logger.Debug("stopping worker", "reason", err)
				return
			}
			continue
		}

		task, err := p.claimNext()
		switch {
		case err == nil:
			p.processTask(task, id)

		case errors.Is(err, store.ErrNoTaskReady):
			p.maybeNotifyDrained()
			if waitErr := p.queue.Wait(p.ctx, p.config.PollInterval); waitErr != nil {
				if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, ErrQueueClosed) {
					logger.Debug("stopping worker")
					return
				}
				logger.Error("queue wait failed", "error", waitErr)
			}

		case errors.Is(err, ErrQueueClosed), errors.Is(err, context.Canceled):
			logger.Debug("stopping worker")
			return

		default:
			logger.Error("failed to claim task", "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-p.clock.After(time.Second):
			}
		}
	}
}

// claimNext pops a task and registers it in flight under one lock, so
// drain detection never observes a claimed-but-unregistered task.
func (p *Processor) claimNext() (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, err := p.queue.Claim(p.ctx)
	if err != nil {
		return nil, err
	}
	p.inFlight[task.ID] = true
	inFlightGauge.Inc()
	return task, nil
}

// processTask handles one execution attempt of a claimed task
func (p *Processor) processTask(task *domain.Task, workerID int) {
	logger := p.logger.With(
		"task_id", task.ID,
		"task_type", task.Type,
		"worker_id", workerID,
	)

	defer p.endAttempt(task.ID)

	p.publishTaskUpdated(task, false)
	logger.Info("processing task", "retry_count", task.RetryCount)

	var result json.RawMessage
	var execErr error

	executor, ok := p.executors[task.Type]
	if !ok {
		execErr = Permanent(fmt.Errorf("%w: %s", ErrNoExecutor, task.Type))
	} else {
		// The attempt runs on its own context so shutdown does not abort
		// it mid-flight; Stop waits for the outcome to be persisted.
		attemptCtx, cancel := context.WithTimeout(context.Background(), p.config.ExecuteTimeout)
		result, execErr = executor.Execute(attemptCtx, task.Clone())
		cancel()
	}

	now := p.clock.Now()

	if p.wasCancelled(task.ID) {
		// Cooperative cancellation: the attempt finished, its outcome is
		// discarded and the task removed.
		if err := p.store.Delete(context.Background(), task.ID); err != nil {
			logger.Error("failed to remove cancelled task", "error", err)
			return
		}
		logger.Info("task cancelled, outcome discarded")
		attemptsTotal.WithLabelValues(outcomeCancelled).Inc()
		p.publishTaskUpdated(task, true)
		return
	}

	if execErr == nil {
		p.completeTask(task, result, now, logger)
		return
	}
	p.failAttempt(task, execErr, now, logger)
}

func (p *Processor) completeTask(task *domain.Task, result json.RawMessage, now time.Time, logger *slog.Logger) {
	if err := task.Complete(result, now); err != nil {
		logger.Error("failed to mark task completed", "error", err)
		return
	}
	if err := p.store.Update(context.Background(), task); err != nil {
		logger.Error("failed to persist completed task", "error", err)
		return
	}

	logger.Info("task completed successfully", "retry_count", task.RetryCount)
	attemptsTotal.WithLabelValues(outcomeCompleted).Inc()
	p.addStats(func(s *DrainStats) { s.Completed++ })
	p.publishTaskUpdated(task, false)
}

// failAttempt applies the retry policy after a failed execution. A
// permanent error or exhausted attempts fail the task terminally;
// otherwise it returns to pending behind every waiting task, ready
// after the backoff delay.
func (p *Processor) failAttempt(task *domain.Task, execErr error, now time.Time, logger *slog.Logger) {
	cause := execErr.Error()
	permanent := IsPermanent(execErr)

	if permanent || task.RetryCount >= task.MaxRetries {
		if err := task.Fail(cause, now); err != nil {
			logger.Error("failed to mark task failed", "error", err)
			return
		}
		if err := p.store.Update(context.Background(), task); err != nil {
			logger.Error("failed to persist failed task", "error", err)
			return
		}

		logger.Error("task failed terminally",
			"error", execErr,
			"permanent", permanent,
			"retry_count", task.RetryCount)
		attemptsTotal.WithLabelValues(outcomeFailed).Inc()
		p.addStats(func(s *DrainStats) { s.Failed++ })
		p.publishTaskUpdated(task, false)
		return
	}

	delay := RetryDelay(p.config.BaseDelay, p.config.MaxDelay, task.RetryCount+1)
	if err := task.ScheduleRetry(cause, now.Add(delay), now); err != nil {
		logger.Error("failed to schedule retry", "error", err)
		return
	}
	if err := p.store.Update(context.Background(), task); err != nil {
		logger.Error("failed to persist retry", "error", err)
		return
	}

	logger.Warn("task attempt failed, retry scheduled",
		"error", execErr,
		"retry_count", task.RetryCount,
		"delay", delay)
	attemptsTotal.WithLabelValues(outcomeRetried).Inc()
	p.addStats(func(s *DrainStats) { s.Retried++ })
	p.publishTaskUpdated(task, false)
}

// maybeNotifyDrained fires the drain handler when the queue has fully
// emptied: no pending tasks at all (ready or not) and no attempt in
// flight. At most one notification fires per kicked pass.
func (p *Processor) maybeNotifyDrained() {
	if !p.dirty.Load() {
		return
	}

	p.mu.Lock()
	if len(p.inFlight) > 0 {
		p.mu.Unlock()
		return
	}
	if _, err := p.store.NextReadyAt(context.Background()); !errors.Is(err, store.ErrNoTaskReady) {
		p.mu.Unlock()
		return
	}
	if !p.dirty.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	stats := p.stats
	p.stats = DrainStats{}
	p.mu.Unlock()

	p.logger.Info("queue drained",
		"completed", stats.Completed,
		"retried", stats.Retried,
		"failed", stats.Failed)
	drainsTotal.Inc()
	p.onDrained(stats)
}

func (p *Processor) endAttempt(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inFlight, id)
	delete(p.cancelled, id)
	inFlightGauge.Dec()
}

func (p *Processor) wasCancelled(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[id]
}

func (p *Processor) addStats(fn func(*DrainStats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

func (p *Processor) publishTaskUpdated(task *domain.Task, removed bool) {
	p.bus.Publish(events.TaskUpdatedEvent{
		Task:    task.Clone(),
		Removed: removed,
		At:      p.clock.Now(),
	})
}
