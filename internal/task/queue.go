package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

// Queue errors
var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("task queue is closed")
)

// Queue exposes the store's ready index as a waitable work queue. The
// durable store is the single source of truth for ordering and
// contents; Queue adds wakeup signalling on top so workers sleep
// between arrivals instead of polling hot. Tasks enter the queue by
// being written to the store as pending and leave it via Claim.
type Queue struct {
	store  store.TaskStore
	clock  clock.Clock
	logger *slog.Logger

	kick chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a Queue over the given store.
func NewQueue(taskStore store.TaskStore, clk clock.Clock, logger *slog.Logger) *Queue {
	return &Queue{
		store:  taskStore,
		clock:  clk,
		logger: logger.With("component", "task_queue"),
		kick:   make(chan struct{}, 1),
	}
}

// Kick signals that new work may be available: a submission, a network
// transition, or an explicit sync request. Kicks coalesce; at most one
// wakeup is buffered.
func (q *Queue) Kick() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Claim pops the oldest pending task whose ReadyAt has passed, marking
// it processing in the same store transaction. Returns
// store.ErrNoTaskReady when nothing is ripe and ErrQueueClosed after
// Close.
func (q *Queue) Claim(ctx context.Context) (*domain.Task, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	return q.store.ClaimReady(ctx, q.clock.Now())
}

// Wait blocks until a kick arrives, the next task's ready time passes,
// pollInterval elapses as a safety net, or the context is cancelled.
// A nil return means it is worth trying Claim again.
func (q *Queue) Wait(ctx context.Context, pollInterval time.Duration) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	var timerCh <-chan time.Time
	next, err := q.store.NextReadyAt(ctx)
	switch {
	case err == nil:
		wait := next.Sub(q.clock.Now())
		if wait <= 0 {
			return nil
		}
		if pollInterval > 0 && wait > pollInterval {
			wait = pollInterval
		}
		timerCh = q.clock.After(wait)
	case errors.Is(err, store.ErrNoTaskReady):
		if pollInterval > 0 {
			timerCh = q.clock.After(pollInterval)
		}
	default:
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.kick:
		return nil
	case <-timerCh:
		return nil
	}
}

// WaitKick blocks until the next kick or context cancellation, ignoring
// ready times. Used while offline, when ripe tasks must still not run.
func (q *Queue) WaitKick(ctx context.Context) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.kick:
		return nil
	}
}

// Close marks the queue closed. Later claims and waits fail with
// ErrQueueClosed; blocked waiters are not interrupted, so cancel their
// contexts first.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.logger.Debug("task queue closed")
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
