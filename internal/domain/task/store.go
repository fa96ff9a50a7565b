package task

import (
	"context"
	"errors"
	"time"
)

// Error types for task store operations.
var (
	// ErrTaskNotFound is returned when a task id does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrConflict is returned when a CAS transition observes a status other
	// than the expected one. The task is left untouched.
	ErrConflict = errors.New("task status conflict")
	// ErrResultNotFound is returned when a task has no stored result.
	ErrResultNotFound = errors.New("task result not found")
)

// TransitionFields are the columns set atomically with a status transition.
// Nil pointers and empty strings leave the column unchanged.
type TransitionFields struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	ResultRef   string
}

// Store persists tasks and their results. Status updates are atomic
// compare-and-swap transitions: the update only applies when the stored
// status equals the expected one, otherwise ErrConflict is returned.
// The task manager is the single writer per task.
type Store interface {
	// CreateTask persists a new task. The caller sets ID and CreatedAt.
	CreateTask(ctx context.Context, t *Task) error
	// GetTask returns a task by id, or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*Task, error)
	// ListByStatus returns up to limit tasks with the given status,
	// oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Task, error)
	// Transition atomically moves a task from one status to another and
	// applies the given fields. Returns ErrConflict when the stored status
	// is not `from`, ErrTaskNotFound when the id is unknown.
	Transition(ctx context.Context, id string, from, to Status, fields TransitionFields) error
	// SaveResult persists a task result.
	SaveResult(ctx context.Context, r *TaskResult) error
	// GetResult returns the result for a task, or ErrResultNotFound.
	GetResult(ctx context.Context, taskID string) (*TaskResult, error)
}
