package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	c := &Config{
		Evals: []EvalConfig{{
			Name:    "qa",
			Dataset: DatasetConfig{Type: "jsonl", Path: "qa.jsonl"},
			Scorers: []ComponentConfig{{Type: "exact"}},
		}},
	}
	c.SetDefaults()
	return c
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	var c Config
	c.SetDefaults()

	if c.Store.Path != DefaultStorePath {
		t.Errorf("store path = %q", c.Store.Path)
	}
	if c.Baselines.Path != DefaultBaselinesPath {
		t.Errorf("baselines path = %q", c.Baselines.Path)
	}
	if c.Worker.MaxConcurrent != 3 || c.Worker.PollInterval != DefaultPollInterval {
		t.Errorf("worker = %+v", c.Worker)
	}
	if c.Logging.Level != "info" || c.Logging.Format != "text" {
		t.Errorf("logging = %+v", c.Logging)
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing eval name",
			mutate:  func(c *Config) { c.Evals[0].Name = "" },
			wantMsg: "required",
		},
		{
			name:    "unknown dataset type",
			mutate:  func(c *Config) { c.Evals[0].Dataset.Type = "parquet" },
			wantMsg: "must be one of",
		},
		{
			name:    "no scorers",
			mutate:  func(c *Config) { c.Evals[0].Scorers = nil },
			wantMsg: "at least 1",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.Worker.PollInterval = "soon" },
			wantMsg: "duration",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantMsg: "must be one of",
		},
		{
			name: "model and models both set",
			mutate: func(c *Config) {
				c.Evals[0].Model = "gpt-x"
				c.Evals[0].Models = []string{"a", "b"}
			},
			wantMsg: "not both",
		},
		{
			name: "duplicate eval name",
			mutate: func(c *Config) {
				c.Evals = append(c.Evals, c.Evals[0])
			},
			wantMsg: "duplicate eval name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestWorkerDurations(t *testing.T) {
	t.Parallel()

	w := WorkerConfig{PollInterval: "250ms", TaskTimeout: "30m"}
	if got := w.PollIntervalDuration().Milliseconds(); got != 250 {
		t.Errorf("poll interval = %dms", got)
	}
	if got := w.TaskTimeoutDuration().Minutes(); got != 30 {
		t.Errorf("task timeout = %gm", got)
	}

	var unset WorkerConfig
	if unset.TaskTimeoutDuration() != 0 {
		t.Error("unset task timeout should be zero")
	}
}

func TestFindEval(t *testing.T) {
	t.Parallel()

	c := validConfig()
	if _, ok := c.FindEval("qa"); !ok {
		t.Error("FindEval(qa) should succeed")
	}
	if _, ok := c.FindEval("missing"); ok {
		t.Error("FindEval(missing) should fail")
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	t.Parallel()

	if got := findConfigFileInPaths([]string{t.TempDir()}); got != "" {
		t.Errorf("findConfigFileInPaths() = %q, want empty", got)
	}
}
