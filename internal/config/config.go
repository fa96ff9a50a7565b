// Package config provides configuration types and loading for evalgate.
//
// Configuration comes from evalgate.yaml (searched in the current
// directory, $HOME/.evalgate/, and /etc/evalgate/), overridable through
// environment variables with the EVALGATE_ prefix
// (e.g. EVALGATE_WORKER_MAX_CONCURRENT=5 overrides worker.max_concurrent).
package config

import "time"

// Config is the top-level evalgate configuration.
type Config struct {
	// Store configures the sqlite persistence.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Baselines configures the baselines file.
	Baselines BaselinesConfig `yaml:"baselines" mapstructure:"baselines"`

	// Worker configures the polling task worker.
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Tracing configures span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// Evals declares named evaluations runnable by the CLI and the worker.
	Evals []EvalConfig `yaml:"evals" mapstructure:"evals" validate:"omitempty,dive"`

	// PolicyFiles lists guardrail policy documents registered at startup.
	PolicyFiles []string `yaml:"policy_files" mapstructure:"policy_files"`
}

// StoreConfig configures the sqlite store.
type StoreConfig struct {
	// Path is the database file. Default: "evalgate.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// BaselinesConfig configures the baselines file.
type BaselinesConfig struct {
	// Path is the baselines JSON file. Default: "baselines.json".
	Path string `yaml:"path" mapstructure:"path"`
}

// WorkerConfig configures the polling task worker.
type WorkerConfig struct {
	// MaxConcurrent bounds tasks executing at once. Default: 3.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	// PollInterval is the sleep between empty polls (e.g. "2s"). Default: "2s".
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval" validate:"omitempty,duration"`
	// TaskTimeout, when set, bounds each task's execution (e.g. "30m").
	TaskTimeout string `yaml:"task_timeout" mapstructure:"task_timeout" validate:"omitempty,duration"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: "info".
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	// Format is "text" or "json". Default: "text".
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled turns on stdout span export. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// EvalConfig declares one named evaluation.
type EvalConfig struct {
	// Name identifies the evaluation.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Dataset selects and parameterises the dataset loader.
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	// Adapter selects the generation adapter. Omit for offline datasets.
	Adapter *ComponentConfig `yaml:"adapter" mapstructure:"adapter"`
	// Scorers grade each item. At least one is required.
	Scorers []ComponentConfig `yaml:"scorers" mapstructure:"scorers" validate:"min=1,dive"`
	// Sinks receive the run's scores.
	Sinks []ComponentConfig `yaml:"sinks" mapstructure:"sinks" validate:"omitempty,dive"`
	// Model selects the adapter model for single-model runs.
	Model string `yaml:"model" mapstructure:"model"`
	// Models runs a multi-model workflow, one child per model. Mutually
	// exclusive with Model.
	Models []string `yaml:"models" mapstructure:"models"`
	// Concurrency bounds in-flight items. 0 uses the engine default.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=0"`
}

// DatasetConfig selects a dataset loader.
type DatasetConfig struct {
	// Type is "jsonl" or "indexed_csv".
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=jsonl indexed_csv"`
	// Path is the dataset file or CSV index.
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
	// BaseDir resolves relative file references for indexed CSV datasets.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
	// EntityType, OperationType, and TestIDs filter indexed CSV rows.
	EntityType    string   `yaml:"entity_type" mapstructure:"entity_type"`
	OperationType string   `yaml:"operation_type" mapstructure:"operation_type"`
	TestIDs       []string `yaml:"test_ids" mapstructure:"test_ids"`
	// ActualSuffix enables offline mode for indexed CSV datasets.
	ActualSuffix string `yaml:"actual_suffix" mapstructure:"actual_suffix"`
}

// ComponentConfig selects a registered adapter, scorer, or sink factory.
type ComponentConfig struct {
	// Type is the registered factory name.
	Type string `yaml:"type" mapstructure:"type" validate:"required"`
	// Config carries factory-specific settings.
	Config map[string]any `yaml:"config" mapstructure:"config"`
}

// Defaults applied by SetDefaults.
const (
	DefaultStorePath     = "evalgate.db"
	DefaultBaselinesPath = "baselines.json"
	DefaultPollInterval  = "2s"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// SetDefaults fills optional fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Baselines.Path == "" {
		c.Baselines.Path = DefaultBaselinesPath
	}
	if c.Worker.MaxConcurrent == 0 {
		c.Worker.MaxConcurrent = 3
	}
	if c.Worker.PollInterval == "" {
		c.Worker.PollInterval = DefaultPollInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// PollIntervalDuration parses the worker poll interval. Call after Validate.
func (w WorkerConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(w.PollInterval)
	return d
}

// TaskTimeoutDuration parses the per-task timeout, zero when unset.
func (w WorkerConfig) TaskTimeoutDuration() time.Duration {
	if w.TaskTimeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(w.TaskTimeout)
	return d
}

// FindEval returns the declared evaluation with the given name.
func (c *Config) FindEval(name string) (EvalConfig, bool) {
	for _, e := range c.Evals {
		if e.Name == name {
			return e, true
		}
	}
	return EvalConfig{}, false
}
