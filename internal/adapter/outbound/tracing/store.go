// Package tracing provides the read-only adapter to a tracing backend:
// trace lookup, cost/token extraction from trace attributes, and a
// generation adapter that replays recorded trace outputs.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// ErrTraceNotFound is returned when a trace id is unknown to the backend.
var ErrTraceNotFound = errors.New("trace not found")

// Store is an in-memory trace backend. It backs tests and local runs; a
// remote backend implements eval.TraceReader the same way.
type Store struct {
	mu     sync.RWMutex
	traces map[string]eval.Trace
	order  []string
	scores map[string][]eval.Score
}

// NewStore creates an empty trace store.
func NewStore() *Store {
	return &Store{
		traces: make(map[string]eval.Trace),
		scores: make(map[string][]eval.Score),
	}
}

// Put records a trace, replacing any previous trace with the same id.
func (s *Store) Put(trace eval.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.traces[trace.ID]; !exists {
		s.order = append(s.order, trace.ID)
	}
	s.traces[trace.ID] = trace
}

// GetTrace returns a trace by id.
func (s *Store) GetTrace(_ context.Context, id string) (*eval.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace, ok := s.traces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, id)
	}
	return &trace, nil
}

// GetCostData resolves the cost summary from a trace's attributes.
func (s *Store) GetCostData(ctx context.Context, id string) (eval.CostData, error) {
	trace, err := s.GetTrace(ctx, id)
	if err != nil {
		return eval.CostData{}, err
	}
	return ExtractCostData(trace.Attributes), nil
}

// WriteScore attaches a score to the trace it names. The trace must
// exist.
func (s *Store) WriteScore(_ context.Context, score eval.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.traces[score.TraceID]; !ok {
		return fmt.Errorf("%w: %s", ErrTraceNotFound, score.TraceID)
	}
	s.scores[score.TraceID] = append(s.scores[score.TraceID], score)
	return nil
}

// Scores returns the scores attached to a trace.
func (s *Store) Scores(traceID string) []eval.Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[traceID]
}

// ListTraces returns up to limit traces whose attributes match every
// filter, in insertion order. limit <= 0 means no limit.
func (s *Store) ListTraces(_ context.Context, filters map[string]any, limit int) ([]eval.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eval.Trace
	for _, id := range s.order {
		trace := s.traces[id]
		if !matches(trace.Attributes, filters) {
			continue
		}
		out = append(out, trace)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(attrs, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := attrs[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
