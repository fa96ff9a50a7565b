// Package sink provides the built-in score/run consumers: console, CSV,
// JSON, JUnit XML, HTML report, and the trace forwarder. Sinks are
// independent; the engine isolates a failing sink so the others still
// flush.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Console writes scores as they arrive and a run summary line at the end.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink writing to w. A nil writer defaults to
// stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Emit prints one score line.
func (c *Console) Emit(score eval.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("%s %s=%s", score.ItemID(), score.Name, score.Value.String())
	if score.Comment != "" {
		line += " (" + score.Comment + ")"
	}
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("write score: %w", err)
	}
	return nil
}

// EmitRun prints the run summary.
func (c *Console) EmitRun(run *eval.EvalResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "run %s eval %s dataset %s: %d scores\n",
		run.RunID, run.EvalID, run.DatasetID, len(run.Scores)); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

// Flush is a no-op; console output is unbuffered.
func (c *Console) Flush() error { return nil }
