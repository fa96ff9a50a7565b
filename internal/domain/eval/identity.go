package eval

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DeriveEvalID computes the deterministic evaluation identifier from the
// eval name, the scorer eval ids, and the dataset id. Scorer ids are sorted
// before hashing so registration order does not change the identity.
// Re-running the same configuration yields the same eval_id; each execution
// still gets a fresh run_id.
func DeriveEvalID(name string, scorerEvalIDs []string, datasetID string) string {
	ids := make([]string, len(scorerEvalIDs))
	copy(ids, scorerEvalIDs)
	sort.Strings(ids)

	h := xxhash.New()
	// 0x1f separators keep field boundaries unambiguous.
	_, _ = h.WriteString(name)
	for _, id := range ids {
		_, _ = h.Write([]byte{0x1f})
		_, _ = h.WriteString(id)
	}
	_, _ = h.Write([]byte{0x1f, 0x1f})
	_, _ = h.WriteString(datasetID)

	return fmt.Sprintf("eval-%016x", h.Sum64())
}
