package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

func sampleRun(scores ...eval.Score) *eval.EvalResult {
	return &eval.EvalResult{
		EvalID:    "eval-0011223344556677",
		RunID:     "run-1",
		DatasetID: "qa_suite",
		Scores:    scores,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf)

	score := eval.Score{
		Name:     "exact",
		Value:    eval.Boolean(true),
		Metadata: map[string]any{eval.MetaDatasetItemID: "t1"},
	}
	if err := c.Emit(score); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if err := c.EmitRun(sampleRun(score)); err != nil {
		t.Fatalf("EmitRun() error: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "t1 exact=true") {
		t.Errorf("output missing score line:\n%s", out)
	}
	if !strings.Contains(out, "run run-1") || !strings.Contains(out, "1 scores") {
		t.Errorf("output missing run summary:\n%s", out)
	}
}

func TestCSV_PerfectMatchRow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewCSV(&buf)

	if err := c.Emit(eval.Score{
		Name:   "exact",
		Value:  eval.Boolean(true),
		EvalID: "exact_match.v1",
		Metadata: map[string]any{
			eval.MetaDatasetItemID: "t1",
			eval.MetaTestID:        "t1",
		},
	}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}

	header := rows[0]
	wantHeader := []string{"name", "value", "eval_id", "comment", "trace_id", "observation_id", "dataset_item_id", "test_id"}
	if len(header) != len(wantHeader) {
		t.Fatalf("header = %v, want %v", header, wantHeader)
	}
	for i := range header {
		if header[i] != wantHeader[i] {
			t.Errorf("header = %v, want %v", header, wantHeader)
			break
		}
	}
	if rows[1][0] != "exact" || rows[1][1] != "true" {
		t.Errorf("data row = %v", rows[1])
	}
	if rows[1][6] != "t1" || rows[1][7] != "t1" {
		t.Errorf("metadata columns = %v", rows[1])
	}
}

func TestCSV_SparseMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewCSV(&buf)

	_ = c.Emit(eval.Score{Name: "a", Value: eval.Number(1), Metadata: map[string]any{"zeta": "z"}})
	_ = c.Emit(eval.Score{Name: "b", Value: eval.Number(0.5), Metadata: map[string]any{"alpha": 3}})
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	// Metadata columns sorted after core columns: alpha before zeta.
	header := rows[0]
	if header[6] != "alpha" || header[7] != "zeta" {
		t.Errorf("header = %v", header)
	}
	if rows[1][6] != "" || rows[1][7] != "z" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][6] != "3" || rows[2][7] != "" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := NewJSON(&buf)

	run := sampleRun(eval.Score{Name: "exact", Value: eval.Boolean(true)})
	if err := j.EmitRun(run); err != nil {
		t.Fatalf("EmitRun() error: %v", err)
	}
	if err := j.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	var decoded []eval.EvalResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(decoded) != 1 || decoded[0].RunID != "run-1" {
		t.Errorf("decoded = %+v", decoded)
	}
	if !strings.Contains(buf.String(), `"value": true`) {
		t.Errorf("boolean score not serialised as JSON boolean:\n%s", buf.String())
	}
}

func TestJSON_EmptyIsArray(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := NewJSON(&buf)
	if err := j.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestJUnit_GenerationErrorFailsTestCase(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := NewJUnit(&buf)

	run := sampleRun(
		eval.Score{
			Name:     eval.GenerationErrorScoreName,
			Value:    eval.Boolean(false),
			Comment:  "connection refused",
			Metadata: map[string]any{eval.MetaDatasetItemID: "t1", eval.MetaTestID: "t1"},
		},
		eval.Score{
			Name:     "exact",
			Value:    eval.Boolean(true),
			Metadata: map[string]any{eval.MetaDatasetItemID: "t2", eval.MetaTestID: "t2"},
		},
	)
	if err := j.EmitRun(run); err != nil {
		t.Fatalf("EmitRun() error: %v", err)
	}
	if err := j.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `tests="2"`) || !strings.Contains(out, `failures="1"`) {
		t.Errorf("suite attributes wrong:\n%s", out)
	}
	if !strings.Contains(out, `name="t1"`) || !strings.Contains(out, "connection refused") {
		t.Errorf("t1 failure missing:\n%s", out)
	}
	// Test cases are sorted, so everything from t2 onward must carry no
	// failure element.
	t2 := out[strings.Index(out, `name="t2"`):]
	if strings.Contains(t2, "<failure") {
		t.Errorf("t2 should not be failed:\n%s", out)
	}
}

func TestJUnit_ZeroValueFails(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := NewJUnit(&buf)

	run := sampleRun(eval.Score{
		Name:     "accuracy",
		Value:    eval.Number(0),
		Metadata: map[string]any{eval.MetaTestID: "t1"},
	})
	_ = j.EmitRun(run)
	if err := j.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if !strings.Contains(buf.String(), `failures="1"`) {
		t.Errorf("zero-valued score should fail the testcase:\n%s", buf.String())
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewHTML(&buf)

	run := sampleRun(
		eval.Score{Name: "exact", Value: eval.Boolean(false), Comment: "mismatch",
			Metadata: map[string]any{eval.MetaDatasetItemID: "t1"}},
		eval.Score{Name: "exact", Value: eval.Boolean(true),
			Metadata: map[string]any{eval.MetaDatasetItemID: "t2"}},
	)
	_ = h.EmitRun(run)
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "run-1") || !strings.Contains(out, "2 scores, 1 failed") {
		t.Errorf("summary missing:\n%s", out)
	}
	if !strings.Contains(out, `class="fail"`) {
		t.Errorf("failed row not marked:\n%s", out)
	}
}

type recordingWriter struct {
	scores []eval.Score
	err    error
}

func (r *recordingWriter) WriteScore(_ context.Context, score eval.Score) error {
	if r.err != nil {
		return r.err
	}
	r.scores = append(r.scores, score)
	return nil
}

func TestForwarder_OnlyTraceLinkedScores(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	f := NewForwarder(w)

	_ = f.Emit(eval.Score{Name: "exact", Value: eval.Boolean(true), TraceID: "tr-1"})
	_ = f.Emit(eval.Score{Name: "exact", Value: eval.Boolean(true)})
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if len(w.scores) != 1 || w.scores[0].TraceID != "tr-1" {
		t.Errorf("forwarded = %+v", w.scores)
	}
}

func TestForwarder_BackendErrorSurfaces(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	f := NewForwarder(&recordingWriter{err: boom})
	_ = f.Emit(eval.Score{Name: "exact", Value: eval.Boolean(true), TraceID: "tr-1"})

	if err := f.Flush(); !errors.Is(err, boom) {
		t.Errorf("Flush() = %v, want wrapped backend error", err)
	}
}
