package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// coreColumns are the fixed leading CSV columns. Flattened metadata keys
// follow, sorted.
var coreColumns = []string{"name", "value", "eval_id", "comment", "trace_id", "observation_id"}

// CSV buffers scores and writes one table at Flush. Metadata maps are
// flattened into columns: core fields first, then the sorted union of all
// metadata keys seen across the run.
type CSV struct {
	mu     sync.Mutex
	w      io.Writer
	scores []eval.Score
}

// NewCSV creates a CSV sink writing to w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: w}
}

// Emit buffers a score.
func (c *CSV) Emit(score eval.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores = append(c.scores, score)
	return nil
}

// EmitRun is a no-op: the CSV table is score-oriented.
func (c *CSV) EmitRun(*eval.EvalResult) error { return nil }

// Flush writes the header and all buffered rows.
func (c *CSV) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	metaKeys := c.metadataKeys()
	header := append(append([]string{}, coreColumns...), metaKeys...)

	w := csv.NewWriter(c.w)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, score := range c.scores {
		row := []string{
			score.Name,
			score.Value.String(),
			score.EvalID,
			score.Comment,
			score.TraceID,
			score.ObservationID,
		}
		for _, key := range metaKeys {
			if v, ok := score.Metadata[key]; ok {
				row = append(row, fmt.Sprint(v))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// metadataKeys returns the sorted union of metadata keys across all
// buffered scores. Caller holds the lock.
func (c *CSV) metadataKeys() []string {
	set := make(map[string]struct{})
	for _, score := range c.scores {
		for key := range score.Metadata {
			set[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
