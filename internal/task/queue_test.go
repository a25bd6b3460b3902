package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/platform/clock"
	"github.com/zinses-rechner/calcsync/internal/store"
)

func TestQueue_ClaimOrdersBySubmission(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())

	ctx := context.Background()
	var submitted []*domain.Task
	for i := 0; i < 3; i++ {
		task := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
		require.NoError(t, taskStore.Put(ctx, task))
		submitted = append(submitted, task)
		clk.Advance(10 * time.Millisecond)
	}

	for _, want := range submitted {
		claimed, err := queue.Claim(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.ID, claimed.ID)
		assert.Equal(t, domain.TaskStatusProcessing, claimed.Status)
	}

	_, err := queue.Claim(ctx)
	assert.ErrorIs(t, err, store.ErrNoTaskReady)
}

func TestQueue_ClaimHonorsReadyAt(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())
	ctx := context.Background()

	// The older task is backing off; the newer one is ripe immediately.
	delayed := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
	delayed.ReadyAt = start.Add(5 * time.Second)
	require.NoError(t, taskStore.Put(ctx, delayed))

	clk.Advance(10 * time.Millisecond)
	ripe := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
	require.NoError(t, taskStore.Put(ctx, ripe))

	claimed, err := queue.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, ripe.ID, claimed.ID)

	_, err = queue.Claim(ctx)
	assert.ErrorIs(t, err, store.ErrNoTaskReady)

	clk.Advance(5 * time.Second)
	claimed, err = queue.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, delayed.ID, claimed.ID)
}

func TestQueue_WaitReturnsOnKick(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	queue := NewQueue(newMemStore(), clk, newTestLogger())

	queue.Kick()
	queue.Kick() // coalesces with the first

	require.NoError(t, queue.Wait(context.Background(), 0))

	// The second kick was absorbed, so the next wait blocks until the
	// context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := queue.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_WaitReturnsImmediatelyWhenTaskRipe(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())
	ctx := context.Background()

	task := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
	require.NoError(t, taskStore.Put(ctx, task))

	require.NoError(t, queue.Wait(ctx, 30*time.Second))
}

func TestQueue_WaitWakesAtReadyTime(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())
	ctx := context.Background()

	task := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
	task.ReadyAt = start.Add(5 * time.Second)
	require.NoError(t, taskStore.Put(ctx, task))

	done := make(chan error, 1)
	go func() {
		done <- queue.Wait(ctx, 30*time.Second)
	}()

	require.Eventually(t, func() bool { return clk.WaiterCount() == 1 },
		time.Second, time.Millisecond, "wait never armed its ready timer")
	clk.Advance(5 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not wake when the task ripened")
	}
}

func TestQueue_WaitUsesPollIntervalWhenIdle(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	queue := NewQueue(newMemStore(), clk, newTestLogger())

	done := make(chan error, 1)
	go func() {
		done <- queue.Wait(context.Background(), 10*time.Second)
	}()

	require.Eventually(t, func() bool { return clk.WaiterCount() == 1 },
		time.Second, time.Millisecond, "wait never armed its poll timer")
	clk.Advance(10 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not wake at the poll interval")
	}
}

func TestQueue_WaitKick(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())
	ctx := context.Background()

	// A ripe task must not wake WaitKick; only kicks and cancellation do.
	task := newTestTask(t, domain.TaskTypeCompoundInterest, 3, clk.Now())
	require.NoError(t, taskStore.Put(ctx, task))

	queue.Kick()
	require.NoError(t, queue.WaitKick(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, queue.WaitKick(cancelled), context.Canceled)
}

func TestQueue_Close(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	queue := NewQueue(newMemStore(), clk, newTestLogger())
	ctx := context.Background()

	queue.Close()
	queue.Close() // idempotent

	_, err := queue.Claim(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, queue.Wait(ctx, time.Second), ErrQueueClosed)
	assert.ErrorIs(t, queue.WaitKick(ctx), ErrQueueClosed)
}

func TestQueue_WaitPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	taskStore := newMemStore()
	queue := NewQueue(taskStore, clk, newTestLogger())

	require.NoError(t, taskStore.Close())

	err := queue.Wait(context.Background(), time.Second)
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}
