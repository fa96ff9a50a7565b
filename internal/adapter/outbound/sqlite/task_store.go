package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evalgate/evalgate/internal/domain/task"
)

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode task metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, eval_name, config, status, created_at, meta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.EvalName, string(t.Config), string(t.Status), t.CreatedAt.UTC(), meta)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, eval_name, config, status, created_at, started_at, completed_at, error, result_ref, meta
		FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

// ListByStatus returns up to limit tasks with the given status, oldest
// first. limit <= 0 means no limit.
func (s *Store) ListByStatus(ctx context.Context, status task.Status, limit int) ([]task.Task, error) {
	query := `
		SELECT id, eval_name, config, status, created_at, started_at, completed_at, error, result_ref, meta
		FROM tasks WHERE status = ? ORDER BY created_at, id`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// Transition atomically moves a task between statuses using a
// status-guarded UPDATE. An update touching zero rows is either an unknown
// id or a CAS conflict.
func (s *Store) Transition(ctx context.Context, id string, from, to task.Status, fields task.TransitionFields) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			status       = ?,
			started_at   = COALESCE(?, started_at),
			completed_at = COALESCE(?, completed_at),
			error        = CASE WHEN ? != '' THEN ? ELSE error END,
			result_ref   = CASE WHEN ? != '' THEN ? ELSE result_ref END
		WHERE id = ? AND status = ?`,
		string(to),
		nullableTime(fields.StartedAt),
		nullableTime(fields.CompletedAt),
		fields.Error, fields.Error,
		fields.ResultRef, fields.ResultRef,
		id, string(from))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s is not %s", task.ErrConflict, id, from)
	}
	return nil
}

// SaveResult persists a task result, replacing any previous one.
func (s *Store) SaveResult(ctx context.Context, r *task.TaskResult) error {
	payload, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	meta, err := encodeJSON(r.Metadata)
	if err != nil {
		return fmt.Errorf("encode result metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_results (task_id, run_id, result, execution_time_seconds, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			run_id = excluded.run_id,
			result = excluded.result,
			execution_time_seconds = excluded.execution_time_seconds,
			meta = excluded.meta`,
		r.TaskID, r.Result.RunID, string(payload), r.ExecutionTimeSeconds, meta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetResult returns the result for a task.
func (s *Store) GetResult(ctx context.Context, taskID string) (*task.TaskResult, error) {
	var (
		payload string
		meta    sql.NullString
		r       task.TaskResult
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT result, execution_time_seconds, meta
		FROM task_results WHERE task_id = ?`, taskID).
		Scan(&payload, &r.ExecutionTimeSeconds, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", task.ErrResultNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}

	r.TaskID = taskID
	if err := json.Unmarshal([]byte(payload), &r.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if err := decodeJSON(meta, &r.Metadata); err != nil {
		return nil, fmt.Errorf("decode result metadata: %w", err)
	}
	return &r, nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t           task.Task
		config      string
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		meta        sql.NullString
	)
	if err := row.Scan(&t.ID, &t.EvalName, &config, &status, &t.CreatedAt,
		&startedAt, &completedAt, &t.Error, &t.ResultRef, &meta); err != nil {
		return nil, err
	}

	t.Config = json.RawMessage(config)
	t.Status = task.Status(status)
	if startedAt.Valid {
		ts := startedAt.Time
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	if err := decodeJSON(meta, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeJSON marshals a metadata map, mapping empty to NULL.
func encodeJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeJSON unmarshals a nullable JSON column.
func decodeJSON(col sql.NullString, dest *map[string]any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}

// nullableTime maps a nil time pointer to SQL NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
