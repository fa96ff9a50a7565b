// Package workflow implements a small deterministic workflow runtime.
// Completed activity results are recorded in a journal keyed by
// (workflow id, sequence number); re-running a workflow replays recorded
// results without re-executing side effects. Workflow code must draw time
// and identifiers from the workflow Context, never from the wall clock or
// process-local randomness, so a replay observes the identical history.
package workflow

import (
	"context"
	"errors"
	"time"
)

// ErrEntryNotFound is returned when no journal entry exists for a
// (workflow id, sequence) pair.
var ErrEntryNotFound = errors.New("journal entry not found")

// Entry is one recorded step of a workflow history.
type Entry struct {
	// WorkflowID owns the entry.
	WorkflowID string `json:"workflow_id"`
	// Seq is the step's position in the workflow history, starting at 0.
	Seq int `json:"seq"`
	// Kind names what was recorded: an activity result, a timestamp, or a
	// generated id.
	Kind string `json:"kind"`
	// Name is the activity name for activity entries.
	Name string `json:"name,omitempty"`
	// Result is the recorded payload, JSON-encoded.
	Result []byte `json:"result,omitempty"`
	// Err records a terminal activity failure instead of a result.
	Err string `json:"err,omitempty"`
	// RecordedAt is when the entry was written (UTC).
	RecordedAt time.Time `json:"recorded_at"`
}

// Entry kinds.
const (
	// KindActivity records a completed activity (result or terminal error).
	KindActivity = "activity"
	// KindNow records a timestamp drawn via Context.Now.
	KindNow = "now"
	// KindID records an identifier drawn via Context.NewID.
	KindID = "id"
)

// Journal persists workflow histories. Implementations must serialise
// appends per workflow id.
type Journal interface {
	// Append records the next entry of a workflow history. The entry's Seq
	// must be exactly the current history length.
	Append(ctx context.Context, e Entry) error
	// Get returns the entry at seq, or ErrEntryNotFound.
	Get(ctx context.Context, workflowID string, seq int) (*Entry, error)
	// Len returns the current history length for a workflow.
	Len(ctx context.Context, workflowID string) (int, error)
}
