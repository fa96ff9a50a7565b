// Package memory provides in-memory implementations of the persistence
// ports: the task store and the workflow journal. They back tests and
// single-process runs; the sqlite package provides the durable versions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/task"
)

// TaskStore is an in-memory task.Store with CAS transitions.
type TaskStore struct {
	mu      sync.RWMutex
	tasks   map[string]task.Task
	results map[string]task.TaskResult
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:   make(map[string]task.Task),
		results: make(map[string]task.TaskResult),
	}
}

// CreateTask persists a new task.
func (s *TaskStore) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = *t
	return nil
}

// GetTask returns a task by id.
func (s *TaskStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return &t, nil
}

// ListByStatus returns up to limit tasks with the given status, oldest
// first. limit <= 0 means no limit.
func (s *TaskStore) ListByStatus(_ context.Context, status task.Status, limit int) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []task.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition atomically moves a task between statuses.
func (s *TaskStore) Transition(_ context.Context, id string, from, to task.Status, fields task.TransitionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if t.Status != from {
		return fmt.Errorf("%w: task %s is %s, expected %s", task.ErrConflict, id, t.Status, from)
	}

	t.Status = to
	if fields.StartedAt != nil {
		t.StartedAt = fields.StartedAt
	}
	if fields.CompletedAt != nil {
		t.CompletedAt = fields.CompletedAt
	}
	if fields.Error != "" {
		t.Error = fields.Error
	}
	if fields.ResultRef != "" {
		t.ResultRef = fields.ResultRef
	}
	s.tasks[id] = t
	return nil
}

// SaveResult persists a task result.
func (s *TaskStore) SaveResult(_ context.Context, r *task.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.TaskID] = *r
	return nil
}

// GetResult returns the result for a task.
func (s *TaskStore) GetResult(_ context.Context, taskID string) (*task.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", task.ErrResultNotFound, taskID)
	}
	return &r, nil
}
