package tracing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/registry"
)

func init() {
	registry.Adapters.MustRegister("trace_replay", func(config map[string]any) (eval.Adapter, error) {
		path, _ := config["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("trace_replay config missing %q", "path")
		}
		store, err := LoadStore(path)
		if err != nil {
			return nil, err
		}
		return NewAdapter(store), nil
	})
}

// traceRecord is the JSONL form of one exported trace.
type traceRecord struct {
	ID         string         `json:"id"`
	Output     string         `json:"output"`
	Attributes map[string]any `json:"attributes"`
}

// LoadStore reads a JSONL trace export into a new store, one trace per
// line. Blank lines are skipped.
func LoadStore(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace export: %w", err)
	}
	defer f.Close()

	store := NewStore()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec traceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("%s:%d: trace has no id", path, line)
		}
		store.Put(eval.Trace{ID: rec.ID, Output: rec.Output, Attributes: rec.Attributes})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace export: %w", err)
	}
	return store, nil
}
