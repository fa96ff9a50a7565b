package sink

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// reportTemplate is the self-contained HTML report.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Evaluation report {{.Run.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
tr.fail td { background: #fdd; }
.summary { margin-bottom: 1.5em; }
</style>
</head>
<body>
<h1>Evaluation report</h1>
<div class="summary">
<p>Eval <code>{{.Run.EvalID}}</code> &middot; run <code>{{.Run.RunID}}</code> &middot; dataset <code>{{.Run.DatasetID}}</code></p>
<p>{{.Total}} scores, {{.Failed}} failed &middot; {{.Run.CreatedAt.UTC.Format "2006-01-02 15:04:05"}} UTC</p>
</div>
<table>
<tr><th>item</th><th>score</th><th>value</th><th>comment</th></tr>
{{range .Rows}}<tr{{if .Fail}} class="fail"{{end}}><td>{{.Item}}</td><td>{{.Name}}</td><td>{{.Value}}</td><td>{{.Comment}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type htmlRow struct {
	Item    string
	Name    string
	Value   string
	Comment string
	Fail    bool
}

type htmlData struct {
	Run    *eval.EvalResult
	Rows   []htmlRow
	Total  int
	Failed int
}

// HTML renders a run as a standalone HTML report at Flush.
type HTML struct {
	mu  sync.Mutex
	w   io.Writer
	run *eval.EvalResult
}

// NewHTML creates an HTML report sink writing to w.
func NewHTML(w io.Writer) *HTML {
	return &HTML{w: w}
}

// Emit is a no-op: the report is built from the run at Flush.
func (h *HTML) Emit(eval.Score) error { return nil }

// EmitRun records the run to report on.
func (h *HTML) EmitRun(run *eval.EvalResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run = run
	return nil
}

// Flush renders the report.
func (h *HTML) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	run := h.run
	if run == nil {
		run = &eval.EvalResult{}
	}

	data := htmlData{Run: run, Total: len(run.Scores)}
	for _, score := range run.Scores {
		fail := !score.Value.Passed() || score.Name == eval.GenerationErrorScoreName
		if fail {
			data.Failed++
		}
		data.Rows = append(data.Rows, htmlRow{
			Item:    score.ItemID(),
			Name:    score.Name,
			Value:   score.Value.String(),
			Comment: score.Comment,
			Fail:    fail,
		})
	}
	sort.SliceStable(data.Rows, func(i, k int) bool {
		if data.Rows[i].Item != data.Rows[k].Item {
			return data.Rows[i].Item < data.Rows[k].Item
		}
		return data.Rows[i].Name < data.Rows[k].Name
	})

	if err := reportTemplate.Execute(h.w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
