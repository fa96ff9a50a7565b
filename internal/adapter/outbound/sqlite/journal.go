package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evalgate/evalgate/internal/workflow"
)

// Append records the next entry of a workflow history. The primary key on
// (workflow_id, seq) rejects duplicate or concurrent appends.
func (s *Store) Append(ctx context.Context, e workflow.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_journal (workflow_id, seq, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.WorkflowID, e.Seq, e.Kind, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Get returns the entry at seq.
func (s *Store) Get(ctx context.Context, workflowID string, seq int) (*workflow.Entry, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM workflow_journal WHERE workflow_id = ? AND seq = ?`,
		workflowID, seq).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: workflow %s seq %d", workflow.ErrEntryNotFound, workflowID, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("scan journal entry: %w", err)
	}

	var entry workflow.Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return &entry, nil
}

// Len returns the history length for a workflow.
func (s *Store) Len(ctx context.Context, workflowID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflow_journal WHERE workflow_id = ?`, workflowID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}
