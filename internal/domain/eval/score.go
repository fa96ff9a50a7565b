package eval

import (
	"encoding/json"
	"fmt"
	"math"
)

// ScoreValue holds a score's value, which is either a real number or a
// boolean. Booleans marshal as true/false but aggregate as 0/1.
type ScoreValue struct {
	num    float64
	b      bool
	isBool bool
}

// Number returns a numeric ScoreValue.
func Number(v float64) ScoreValue {
	return ScoreValue{num: v}
}

// Boolean returns a boolean ScoreValue.
func Boolean(v bool) ScoreValue {
	return ScoreValue{b: v, isBool: true}
}

// IsBool reports whether the value is boolean.
func (v ScoreValue) IsBool() bool { return v.isBool }

// Bool returns the boolean value. Numeric values report true when non-zero.
func (v ScoreValue) Bool() bool {
	if v.isBool {
		return v.b
	}
	return v.num != 0
}

// Float returns the value for aggregation, coercing booleans to 0/1.
func (v ScoreValue) Float() float64 {
	if v.isBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.num
}

// Finite reports whether the aggregated value is a finite number.
// Booleans are always finite.
func (v ScoreValue) Finite() bool {
	f := v.Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Passed reports whether the value counts as a pass for test-report sinks:
// boolean true or any non-zero finite number.
func (v ScoreValue) Passed() bool {
	if v.isBool {
		return v.b
	}
	return v.Finite() && v.num != 0
}

// String renders booleans as true/false and numbers with %g.
func (v ScoreValue) String() string {
	if v.isBool {
		return fmt.Sprintf("%t", v.b)
	}
	return fmt.Sprintf("%g", v.num)
}

// MarshalJSON emits booleans as JSON booleans and numbers as JSON numbers.
// Non-finite numbers are emitted as null (JSON has no NaN/Inf).
func (v ScoreValue) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.b)
	}
	if !v.Finite() {
		return []byte("null"), nil
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts booleans, numbers, and null (stored as NaN).
func (v *ScoreValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Boolean(b)
		return nil
	}
	if string(data) == "null" {
		*v = Number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("score value must be a number or boolean: %w", err)
	}
	*v = Number(f)
	return nil
}

// Score is the graded outcome of one scorer for one item.
type Score struct {
	// Name is the stable identifier used for aggregation and comparison.
	Name string `json:"name"`
	// Value is the numeric or boolean grade.
	Value ScoreValue `json:"value"`
	// EvalID is the versioned identifier of the producing scorer
	// (e.g. "exact_match.v1").
	EvalID string `json:"eval_id,omitempty"`
	// Comment is an optional human-readable note, used for failure causes.
	Comment string `json:"comment,omitempty"`
	// Metadata carries dataset_item_id, test_id, adapter metrics, and any
	// item metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
	// TraceID links the score to a trace in the tracing backend.
	TraceID string `json:"trace_id,omitempty"`
	// ObservationID links the score to a specific observation in a trace.
	ObservationID string `json:"observation_id,omitempty"`
}

// ItemID returns the dataset item id carried in the score metadata, or
// "unknown" when the score is not linked to an item.
func (s Score) ItemID() string {
	if id, ok := s.Metadata[MetaDatasetItemID].(string); ok && id != "" {
		return id
	}
	return "unknown"
}
