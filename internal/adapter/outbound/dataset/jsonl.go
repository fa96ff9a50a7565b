// Package dataset materialises datasets from line-delimited records,
// indexed CSV manifests, and generator functions.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 10 * 1024 * 1024 // 10MB

// jsonlRecord is the wire shape of one line-delimited record.
type jsonlRecord struct {
	ID       string         `json:"id"`
	Input    map[string]any `json:"input"`
	Output   *string        `json:"output"`
	Expected any            `json:"expected"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

// LoadJSONL loads a line-delimited dataset. Each non-blank line is one JSON
// record; a malformed line fails the load with its line number. Item ids
// must be unique within the dataset. The dataset id is the file name
// without extension.
func LoadJSONL(path string) (*eval.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds := &eval.Dataset{ID: stem(path)}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid record: %w", lineNo, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: record has no id", lineNo)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("line %d: duplicate item id %q", lineNo, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		item := eval.DatasetItem{
			ID:       rec.ID,
			Input:    rec.Input,
			Expected: rec.Expected,
			Tags:     rec.Tags,
			Metadata: rec.Metadata,
		}
		if rec.Output != nil {
			out := eval.RawOutput(*rec.Output)
			item.Output = &out
		}
		ds.Items = append(ds.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	return ds, nil
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
