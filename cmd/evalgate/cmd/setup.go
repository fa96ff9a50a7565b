package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/evalgate/evalgate/internal/adapter/outbound/sqlite"
	"github.com/evalgate/evalgate/internal/config"
	"github.com/evalgate/evalgate/internal/service"

	// Registry population.
	_ "github.com/evalgate/evalgate/internal/adapter/outbound/llm"
	_ "github.com/evalgate/evalgate/internal/adapter/outbound/mcp"
	_ "github.com/evalgate/evalgate/internal/adapter/outbound/sink"
	_ "github.com/evalgate/evalgate/internal/adapter/outbound/tracing"
	_ "github.com/evalgate/evalgate/internal/domain/guardrail"
	_ "github.com/evalgate/evalgate/internal/domain/scorer"
)

// setupTracing installs the stdout span exporter when tracing is enabled.
// The returned shutdown flushes pending spans.
func setupTracing(cfg config.TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// openStore opens the sqlite store from the config.
func openStore(cfg *config.Config, logger *slog.Logger) (*sqlite.Store, error) {
	store, err := sqlite.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return store, nil
}

// taskConfigFromEval converts a declared evaluation into the serialised
// task config the task manager executes.
func taskConfigFromEval(e config.EvalConfig) service.TaskConfig {
	cfg := service.TaskConfig{
		Dataset: service.DatasetConfig{
			Type:          e.Dataset.Type,
			Path:          e.Dataset.Path,
			BaseDir:       e.Dataset.BaseDir,
			EntityType:    e.Dataset.EntityType,
			OperationType: e.Dataset.OperationType,
			TestIDs:       e.Dataset.TestIDs,
			ActualSuffix:  e.Dataset.ActualSuffix,
		},
		Model:       e.Model,
		Concurrency: e.Concurrency,
	}
	if e.Adapter != nil {
		cfg.Adapter = &service.ComponentConfig{Type: e.Adapter.Type, Config: e.Adapter.Config}
	}
	for _, s := range e.Scorers {
		cfg.Scorers = append(cfg.Scorers, service.ComponentConfig{Type: s.Type, Config: s.Config})
	}
	for _, s := range e.Sinks {
		cfg.Sinks = append(cfg.Sinks, service.ComponentConfig{Type: s.Type, Config: s.Config})
	}
	return cfg
}
