package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a queued task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// DefaultMaxRetries is the number of retry attempts a task is granted
// when the caller does not specify one.
const DefaultMaxRetries = 3

// Task-specific validation errors
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyTaskType    = errors.New("task type cannot be empty")
	ErrEmptyTaskPayload = errors.New("task payload cannot be empty")
	ErrInvalidPayload   = errors.New("task payload must be valid JSON")
	ErrInvalidStatus    = errors.New("invalid task status")
	ErrNegativeRetries  = errors.New("max retries cannot be negative")
	ErrRetryCountRange  = errors.New("retry count must be between 0 and max retries")
	ErrResultNotAllowed = errors.New("result is only valid on a completed task")
)

// Task is a unit of deferred work: a calculation request captured on the
// device and executed once connectivity allows. Tasks are persisted
// immediately on submission and survive restarts.
//
// ReadyAt is the earliest instant the task may be picked up. On submission
// it equals CreatedAt, so the queue drains in submission order; a retry
// pushes it past the backoff delay, which also moves the task behind
// everything already waiting.
type Task struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     TaskStatus      `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ReadyAt    time.Time       `json:"ready_at"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// SizeBytes is the encoded size of the task as stored, maintained by
	// the store for budget accounting. It is derived, never persisted.
	SizeBytes int64 `json:"-"`
}

// NewTask creates a pending Task for the given type and payload. The
// caller supplies the current time so that task timestamps follow the
// injected clock rather than the wall clock.
// Returns an error if validation fails.
func NewTask(taskType string, payload json.RawMessage, maxRetries int, now time.Time) (*Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating task ID: %w", err)
	}

	task := &Task{
		ID:         id,
		Type:       taskType,
		Payload:    payload,
		Status:     TaskStatusPending,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
		ReadyAt:    now.UTC(),
		RetryCount: 0,
		MaxRetries: maxRetries,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Type == "" {
		return ErrEmptyTaskType
	}

	if len(t.Payload) == 0 {
		return ErrEmptyTaskPayload
	}

	if !json.Valid(t.Payload) {
		return ErrInvalidPayload
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidStatus
	}

	if t.MaxRetries < 0 {
		return ErrNegativeRetries
	}

	if t.RetryCount < 0 || t.RetryCount > t.MaxRetries {
		return ErrRetryCountRange
	}

	if len(t.Result) > 0 && t.Status != TaskStatusCompleted {
		return ErrResultNotAllowed
	}

	return nil
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// MarkProcessing transitions a pending task to processing.
func (t *Task) MarkProcessing(now time.Time) error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("%w: cannot process task in status %q", ErrInvalidStatusTransition, t.Status)
	}

	t.Status = TaskStatusProcessing
	t.UpdatedAt = now.UTC()
	return nil
}

// Complete transitions a processing task to completed and records its result.
func (t *Task) Complete(result json.RawMessage, now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot complete task in status %q", ErrInvalidStatusTransition, t.Status)
	}

	t.Status = TaskStatusCompleted
	t.Result = result
	t.LastError = ""
	t.UpdatedAt = now.UTC()
	return nil
}

// ScheduleRetry returns a processing task to pending after a failed
// attempt. It records the failure, consumes one retry, and defers the
// task until readyAt, which places it behind every task already waiting.
// Returns ErrRetryExhausted when no attempts remain; callers should call
// Fail instead in that case.
func (t *Task) ScheduleRetry(cause string, readyAt, now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot retry task in status %q", ErrInvalidStatusTransition, t.Status)
	}

	if t.RetryCount >= t.MaxRetries {
		return ErrRetryExhausted
	}

	t.Status = TaskStatusPending
	t.RetryCount++
	t.LastError = cause
	t.ReadyAt = readyAt.UTC()
	t.UpdatedAt = now.UTC()
	return nil
}

// Requeue returns an interrupted processing task to pending without
// consuming a retry. Used during startup recovery when an attempt did
// not survive a restart. ReadyAt is unchanged, so the task keeps its
// place in line.
func (t *Task) Requeue(now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot requeue task in status %q", ErrInvalidStatusTransition, t.Status)
	}

	t.Status = TaskStatusPending
	t.UpdatedAt = now.UTC()
	return nil
}

// Fail transitions a processing task to failed terminally. The retry
// count is left as-is: a task that exhausts its attempts ends with
// RetryCount equal to MaxRetries.
func (t *Task) Fail(cause string, now time.Time) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: cannot fail task in status %q", ErrInvalidStatusTransition, t.Status)
	}

	t.Status = TaskStatusFailed
	t.LastError = cause
	t.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a deep copy of the task. Store implementations hand out
// clones so callers can never mutate persisted state through a snapshot.
func (t *Task) Clone() *Task {
	clone := *t
	if t.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.Result != nil {
		clone.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &clone
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
