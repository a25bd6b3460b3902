package task

import (
	"context"
	"encoding/json"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

// Executor performs one attempt of a task's work and returns the
// serialized result. The context carries the per-attempt deadline;
// remote executors must honor it, local ones may finish synchronously.
// Returned errors are transient (retried with backoff) unless wrapped
// with Permanent.
type Executor interface {
	Execute(ctx context.Context, task *domain.Task) (json.RawMessage, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *domain.Task) (json.RawMessage, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (json.RawMessage, error) {
	return f(ctx, task)
}
