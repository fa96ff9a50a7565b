package dataset

import (
	"fmt"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// GeneratorFunc produces dataset items programmatically.
type GeneratorFunc func() ([]eval.DatasetItem, error)

// FromFunc materialises a dataset from a generator function. A generator
// error surfaces to the caller; item ids must still be unique.
func FromFunc(id string, fn GeneratorFunc) (*eval.Dataset, error) {
	items, err := fn()
	if err != nil {
		return nil, fmt.Errorf("generate dataset: %w", err)
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %d: item has no id", i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("item %d: duplicate item id %q", i, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	return &eval.Dataset{ID: id, Items: items}, nil
}
