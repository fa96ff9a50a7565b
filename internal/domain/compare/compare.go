// Package compare diffs two evaluation runs per (item, score) pair and
// classifies each change as improved, regressed, or unchanged against a
// significance threshold.
package compare

import (
	"math"
	"sort"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Class is the classification of a single change.
type Class string

const (
	// ClassImproved means the candidate value rose by at least the threshold.
	ClassImproved Class = "improved"
	// ClassRegressed means the candidate value fell by at least the threshold.
	ClassRegressed Class = "regressed"
	// ClassUnchanged means the delta magnitude is below the threshold.
	ClassUnchanged Class = "unchanged"
)

// DefaultThreshold is the significance threshold τ when none is given.
const DefaultThreshold = 0.01

// DefaultMinRegressions is the gate's regression count threshold.
const DefaultMinRegressions = 1

// Options configures a comparison.
type Options struct {
	// Threshold is τ; deltas with |Δ| < τ classify as unchanged.
	// Zero means DefaultThreshold.
	Threshold float64
}

// Change is one per-(item, score) difference record.
type Change struct {
	ItemID    string  `json:"item_id"`
	ScoreName string  `json:"score_name"`
	Before    float64 `json:"v1"`
	After     float64 `json:"v2"`
	Delta     float64 `json:"delta"`
	Class     Class   `json:"class"`
}

// Result is the outcome of comparing a baseline run against a candidate run.
type Result struct {
	// Improvements, Regressions, and Unchanged count classifications per
	// score name, over keys common to both runs.
	Improvements map[string]int `json:"improvements"`
	Regressions  map[string]int `json:"regressions"`
	Unchanged    map[string]int `json:"unchanged"`
	// Changes lists every classified pair.
	Changes []Change `json:"changes"`
	// BaselineValues and CandidateValues aggregate all values per score
	// name, including scores present in only one run.
	BaselineValues  map[string][]float64 `json:"baseline_values"`
	CandidateValues map[string][]float64 `json:"candidate_values"`
}

// Compare diffs baseline against candidate. Scores are grouped by
// (item_id, score_name), with item_id taken from score metadata and
// "unknown" when absent. Booleans are coerced to 0/1. A score present in
// only one run is excluded from classification but included in the
// aggregated value maps.
func Compare(baseline, candidate *eval.EvalResult, opts Options) Result {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	res := Result{
		Improvements:    make(map[string]int),
		Regressions:     make(map[string]int),
		Unchanged:       make(map[string]int),
		BaselineValues:  make(map[string][]float64),
		CandidateValues: make(map[string][]float64),
	}

	before := index(baseline, res.BaselineValues)
	after := index(candidate, res.CandidateValues)

	keys := make([]groupKey, 0, len(before))
	for k := range before {
		if _, ok := after[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].item != keys[j].item {
			return keys[i].item < keys[j].item
		}
		return keys[i].name < keys[j].name
	})

	for _, k := range keys {
		v1, v2 := before[k], after[k]
		delta := v2 - v1
		var class Class
		switch {
		case math.Abs(delta) < threshold:
			class = ClassUnchanged
			res.Unchanged[k.name]++
		case delta > 0:
			class = ClassImproved
			res.Improvements[k.name]++
		default:
			class = ClassRegressed
			res.Regressions[k.name]++
		}
		res.Changes = append(res.Changes, Change{
			ItemID:    k.item,
			ScoreName: k.name,
			Before:    v1,
			After:     v2,
			Delta:     delta,
			Class:     class,
		})
	}

	return res
}

// GateRegressions returns the sorted score names whose regression count is
// at least minRegressions (DefaultMinRegressions when <= 0). A non-empty
// result is the deployment-gate failure signal.
func (r Result) GateRegressions(minRegressions int) []string {
	if minRegressions <= 0 {
		minRegressions = DefaultMinRegressions
	}
	var names []string
	for name, count := range r.Regressions {
		if count >= minRegressions {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type groupKey struct {
	item string
	name string
}

// index maps each (item, score) of a run to its coerced value and appends
// every value to the per-name aggregation map. When a pair appears more
// than once the last value wins, matching the engine's at-most-one
// guarantee per run.
func index(run *eval.EvalResult, values map[string][]float64) map[groupKey]float64 {
	out := make(map[groupKey]float64, len(run.Scores))
	for _, s := range run.Scores {
		v := s.Value.Float()
		values[s.Name] = append(values[s.Name], v)
		out[groupKey{item: s.ItemID(), name: s.Name}] = v
	}
	return out
}
