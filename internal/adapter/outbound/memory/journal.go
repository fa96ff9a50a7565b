package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/evalgate/evalgate/internal/workflow"
)

// Journal is an in-memory workflow journal.
type Journal struct {
	mu        sync.RWMutex
	histories map[string][]workflow.Entry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{histories: make(map[string][]workflow.Entry)}
}

// Append records the next entry of a workflow history.
func (j *Journal) Append(_ context.Context, e workflow.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	history := j.histories[e.WorkflowID]
	if e.Seq != len(history) {
		return fmt.Errorf("journal append out of order: seq %d, history length %d", e.Seq, len(history))
	}
	j.histories[e.WorkflowID] = append(history, e)
	return nil
}

// Get returns the entry at seq.
func (j *Journal) Get(_ context.Context, workflowID string, seq int) (*workflow.Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	history := j.histories[workflowID]
	if seq < 0 || seq >= len(history) {
		return nil, fmt.Errorf("%w: workflow %s seq %d", workflow.ErrEntryNotFound, workflowID, seq)
	}
	entry := history[seq]
	return &entry, nil
}

// Len returns the history length for a workflow.
func (j *Journal) Len(_ context.Context, workflowID string) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.histories[workflowID]), nil
}
