// Package task contains domain types for the durable task lifecycle:
// the Task record, its status transition relation, and the Store port.
package task

import (
	"encoding/json"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is persisted and awaiting a worker.
	StatusPending Status = "PENDING"
	// StatusRunning means a worker holds the task and the engine is running.
	StatusRunning Status = "RUNNING"
	// StatusCompleted is the terminal success state.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed is the terminal failure state.
	StatusFailed Status = "FAILED"
	// StatusCancelled is the terminal state after a cancellation request.
	StatusCancelled Status = "CANCELLED"
)

// validTransitions encodes the only permitted status moves:
// PENDING→RUNNING→{COMPLETED|FAILED} and {PENDING|RUNNING}→CANCELLED.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is permitted.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is a durable, cancellable evaluation request.
type Task struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`
	// EvalName names the evaluation this task runs.
	EvalName string `json:"eval_name"`
	// Config is the serialised evaluation configuration.
	Config json.RawMessage `json:"config"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// CreatedAt is when the task was persisted (UTC).
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is set on the PENDING→RUNNING transition.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is set on entering a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error records the failure cause for FAILED tasks.
	Error string `json:"error,omitempty"`
	// ResultRef references the stored TaskResult, when one exists.
	ResultRef string `json:"result_ref,omitempty"`
	// Metadata is arbitrary task metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskResult records the outcome of a completed task.
type TaskResult struct {
	// TaskID is the owning task.
	TaskID string `json:"task_id"`
	// Result is the embedded run result.
	Result eval.EvalResult `json:"result"`
	// ExecutionTimeSeconds is the wall time the engine spent.
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	// Metadata is arbitrary result metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}
