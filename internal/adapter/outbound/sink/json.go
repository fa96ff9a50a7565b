package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// JSON buffers runs and writes one array of serialised runs at Flush.
type JSON struct {
	mu   sync.Mutex
	w    io.Writer
	runs []*eval.EvalResult
}

// NewJSON creates a JSON sink writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{w: w}
}

// Emit is a no-op: scores travel inside the run.
func (j *JSON) Emit(eval.Score) error { return nil }

// EmitRun buffers a run.
func (j *JSON) EmitRun(run *eval.EvalResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return nil
}

// Flush encodes the buffered runs as a JSON array.
func (j *JSON) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	runs := j.runs
	if runs == nil {
		runs = []*eval.EvalResult{}
	}
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runs); err != nil {
		return fmt.Errorf("encode runs: %w", err)
	}
	return nil
}
