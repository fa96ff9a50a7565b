package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Columns the indexed CSV header must carry. Extra columns are tolerated.
var requiredColumns = []string{"test_id", "entity_type", "operation_type", "prompt_file", "expected_file"}

// IndexedCSVConfig configures an indexed-CSV dataset load.
type IndexedCSVConfig struct {
	// Path is the CSV index file.
	Path string
	// BaseDir resolves relative file-column paths. Defaults to the
	// directory containing the index file.
	BaseDir string
	// EntityType keeps only rows with a matching entity_type when set.
	EntityType string
	// OperationType keeps only rows with a matching operation_type when set.
	OperationType string
	// TestIDs keeps only the named rows when non-empty.
	TestIDs []string
	// ActualSuffix enables offline mode: for each row, a sibling of
	// expected_file named <stem>_<ActualSuffix>.<ext> is loaded into the
	// item output when present.
	ActualSuffix string
}

// LoadIndexedCSV loads a dataset from a CSV index whose rows reference
// external prompt and expected files. Rows are filtered by entity type,
// operation type, and explicit test ids. A referenced file that does not
// exist fails the load.
func LoadIndexedCSV(cfg IndexedCSVConfig) (*eval.Dataset, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = filepath.Dir(cfg.Path)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // extra columns tolerated

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("index header missing column %q", name)
		}
	}

	ds := &eval.Dataset{ID: stem(cfg.Path)}
	seen := make(map[string]struct{})

	for lineNo := 2; ; lineNo++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		field := func(name string) string {
			idx := col[name]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		testID := field("test_id")
		if testID == "" {
			return nil, fmt.Errorf("line %d: row has no test_id", lineNo)
		}
		if _, dup := seen[testID]; dup {
			return nil, fmt.Errorf("line %d: duplicate test_id %q", lineNo, testID)
		}

		entityType := field("entity_type")
		operationType := field("operation_type")
		if cfg.EntityType != "" && entityType != cfg.EntityType {
			continue
		}
		if cfg.OperationType != "" && operationType != cfg.OperationType {
			continue
		}
		if len(cfg.TestIDs) > 0 && !slices.Contains(cfg.TestIDs, testID) {
			continue
		}
		seen[testID] = struct{}{}

		promptPath := resolve(baseDir, field("prompt_file"))
		expectedPath := resolve(baseDir, field("expected_file"))

		prompt, err := os.ReadFile(promptPath)
		if err != nil {
			return nil, fmt.Errorf("line %d: prompt file: %w", lineNo, err)
		}
		expected, err := os.ReadFile(expectedPath)
		if err != nil {
			return nil, fmt.Errorf("line %d: expected file: %w", lineNo, err)
		}

		item := eval.DatasetItem{
			ID:       testID,
			Input:    map[string]any{"prompt": string(prompt)},
			Expected: string(expected),
			Metadata: map[string]any{
				"entity_type":    entityType,
				"operation_type": operationType,
			},
		}

		if cfg.ActualSuffix != "" {
			actualPath := siblingActual(expectedPath, cfg.ActualSuffix)
			if actual, err := os.ReadFile(actualPath); err == nil {
				out := eval.RawOutput(string(actual))
				item.Output = &out
			} else if !os.IsNotExist(err) {
				return nil, fmt.Errorf("line %d: actual file: %w", lineNo, err)
			}
		}

		ds.Items = append(ds.Items, item)
	}

	return ds, nil
}

// resolve joins a file-column path with the base directory unless the path
// is already absolute.
func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// siblingActual maps /dir/expected.json + suffix "actual" to
// /dir/expected_actual.json.
func siblingActual(expectedPath, suffix string) string {
	dir := filepath.Dir(expectedPath)
	base := filepath.Base(expectedPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, name+"_"+suffix+ext)
}
