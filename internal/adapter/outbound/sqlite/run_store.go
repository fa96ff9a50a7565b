package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// ErrEvalNotFound is returned when an eval name or id is unknown.
var ErrEvalNotFound = errors.New("eval not found")

// EvalRecord is a stored evaluation definition.
type EvalRecord struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	DatasetConfig json.RawMessage `json:"dataset_config,omitempty"`
	ScorersConfig json.RawMessage `json:"scorers_config,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SaveEval upserts an evaluation definition by name.
func (s *Store) SaveEval(ctx context.Context, rec *EvalRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evals (id, name, description, dataset_config, scorers_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			dataset_config = excluded.dataset_config,
			scorers_config = excluded.scorers_config,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Description,
		string(rec.DatasetConfig), string(rec.ScorersConfig),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert eval: %w", err)
	}
	return nil
}

// GetEvalByName returns an evaluation definition.
func (s *Store) GetEvalByName(ctx context.Context, name string) (*EvalRecord, error) {
	var (
		rec     EvalRecord
		dataset sql.NullString
		scorers sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, dataset_config, scorers_config, created_at, updated_at
		FROM evals WHERE name = ?`, name).
		Scan(&rec.ID, &rec.Name, &rec.Description, &dataset, &scorers, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEvalNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("scan eval: %w", err)
	}

	if dataset.Valid {
		rec.DatasetConfig = json.RawMessage(dataset.String)
	}
	if scorers.Valid {
		rec.ScorersConfig = json.RawMessage(scorers.String)
	}
	return &rec, nil
}

// SaveRun persists a run and all its scores in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *eval.EvalResult, model string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	meta, err := encodeJSON(run.Metadata)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (eval_id, run_id, dataset_id, model, created_at, meta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.EvalID, run.RunID, run.DatasetID, model, run.CreatedAt.UTC(), meta); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	now := time.Now().UTC()
	for i, score := range run.Scores {
		scoreMeta, err := encodeJSON(score.Metadata)
		if err != nil {
			return fmt.Errorf("encode score %d metadata: %w", i, err)
		}
		isBool := 0
		if score.Value.IsBool() {
			isBool = 1
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO scores (run_id, name, value, is_bool, eval_id, comment, meta, trace_id, observation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, score.Name, nullableFloat(score.Value), isBool,
			score.EvalID, score.Comment, scoreMeta,
			score.TraceID, score.ObservationID, now); err != nil {
			return fmt.Errorf("insert score %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// GetRun reconstructs a run with its scores.
func (s *Store) GetRun(ctx context.Context, runID string) (*eval.EvalResult, error) {
	var (
		run  eval.EvalResult
		meta sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT eval_id, run_id, dataset_id, created_at, meta
		FROM runs WHERE run_id = ?`, runID).
		Scan(&run.EvalID, &run.RunID, &run.DatasetID, &run.CreatedAt, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if err := decodeJSON(meta, &run.Metadata); err != nil {
		return nil, fmt.Errorf("decode run metadata: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value, is_bool, eval_id, comment, meta, trace_id, observation_id
		FROM scores WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			score     eval.Score
			value     sql.NullFloat64
			isBool    int
			scoreMeta sql.NullString
		)
		if err := rows.Scan(&score.Name, &value, &isBool, &score.EvalID,
			&score.Comment, &scoreMeta, &score.TraceID, &score.ObservationID); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		score.Value = decodeValue(value, isBool == 1)
		if err := decodeJSON(scoreMeta, &score.Metadata); err != nil {
			return nil, fmt.Errorf("decode score metadata: %w", err)
		}
		run.Scores = append(run.Scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return &run, nil
}

// ListRuns returns the run ids recorded for an eval, newest first.
func (s *Store) ListRuns(ctx context.Context, evalID string, limit int) ([]string, error) {
	query := `SELECT run_id FROM runs WHERE eval_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{evalID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// nullableFloat stores non-finite score values as NULL.
func nullableFloat(v eval.ScoreValue) any {
	if !v.Finite() {
		return nil
	}
	return v.Float()
}

// decodeValue reconstructs a ScoreValue from its column pair.
func decodeValue(value sql.NullFloat64, isBool bool) eval.ScoreValue {
	if isBool {
		return eval.Boolean(value.Valid && value.Float64 != 0)
	}
	if !value.Valid {
		return eval.Number(math.NaN())
	}
	return eval.Number(value.Float64)
}
