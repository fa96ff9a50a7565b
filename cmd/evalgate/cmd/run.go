package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/adapter/outbound/sqlite"
	"github.com/evalgate/evalgate/internal/config"
	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/domain/scorer"
	"github.com/evalgate/evalgate/internal/registry"
	"github.com/evalgate/evalgate/internal/service"
	"github.com/evalgate/evalgate/internal/workflow"
)

var runModels []string

var runCmd = &cobra.Command{
	Use:   "run <eval-name>",
	Short: "Run a declared evaluation in the foreground",
	Long: `Run executes an evaluation declared in the config file. The run is
recorded as a task in the store; its result is persisted and printed.

With --models (or a models list in the config) each model runs as a child
of a durable multi-model workflow, so a crashed run resumes without
repeating completed steps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		evalCfg, ok := cfg.FindEval(args[0])
		if !ok {
			return fmt.Errorf("eval %q is not declared in the config", args[0])
		}
		if len(runModels) > 0 {
			evalCfg.Models = runModels
			evalCfg.Model = ""
		}

		logger := newLogger(cfg.Logging)
		shutdown, err := setupTracing(cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := service.NewEvalService(logger, nil)
		if len(evalCfg.Models) > 0 {
			return runMultiModel(ctx, engine, store, evalCfg)
		}
		return runSingle(ctx, engine, store, evalCfg)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runModels, "models", nil, "run one child workflow per model")
	rootCmd.AddCommand(runCmd)
}

// runSingle executes the eval as a foreground task.
func runSingle(ctx context.Context, engine *service.EvalService, store *sqlite.Store, e config.EvalConfig) error {
	tasks := service.NewTaskService(store, engine, nil, nil)

	raw, err := json.Marshal(taskConfigFromEval(e))
	if err != nil {
		return fmt.Errorf("encode task config: %w", err)
	}
	created, err := tasks.Create(ctx, e.Name, raw, nil)
	if err != nil {
		return err
	}
	result, err := tasks.Execute(ctx, created.ID)
	if err != nil {
		return err
	}

	if err := store.SaveRun(ctx, &result.Result, e.Model); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	return printJSON(result.Result)
}

// runMultiModel executes one durable child workflow per model.
func runMultiModel(ctx context.Context, engine *service.EvalService, store *sqlite.Store, e config.EvalConfig) error {
	components, err := buildComponents(e)
	if err != nil {
		return err
	}

	acts := service.NewEvalActivities(engine, components.scorers, components.adapter, components.sinks, store, nil)
	runner := workflow.NewRunner(store, nil)

	source, err := json.Marshal(service.DatasetConfig{
		Type:          e.Dataset.Type,
		Path:          e.Dataset.Path,
		BaseDir:       e.Dataset.BaseDir,
		EntityType:    e.Dataset.EntityType,
		OperationType: e.Dataset.OperationType,
		TestIDs:       e.Dataset.TestIDs,
		ActualSuffix:  e.Dataset.ActualSuffix,
	})
	if err != nil {
		return fmt.Errorf("encode dataset source: %w", err)
	}

	runs, err := runner.RunMultiModel(ctx, e.Name, string(source), e.Models, acts)
	if err != nil {
		return err
	}
	return printJSON(runs)
}

// components are the registry-built parts of one evaluation.
type components struct {
	scorers []eval.Scorer
	adapter eval.Adapter
	sinks   []eval.Sink
}

// buildComponents builds scorers, adapter, and sinks from a declared eval.
func buildComponents(e config.EvalConfig) (components, error) {
	var c components
	for _, sc := range e.Scorers {
		built, err := registry.Scorers.Build(sc.Type, sc.Config)
		if err != nil {
			return c, fmt.Errorf("build scorer %q: %w", sc.Type, err)
		}
		c.scorers = append(c.scorers, scorer.Safe(scorer.Enriched(built)))
	}
	if e.Adapter != nil {
		built, err := registry.Adapters.Build(e.Adapter.Type, e.Adapter.Config)
		if err != nil {
			return c, fmt.Errorf("build adapter %q: %w", e.Adapter.Type, err)
		}
		c.adapter = built
	}
	for _, sk := range e.Sinks {
		built, err := registry.Sinks.Build(sk.Type, sk.Config)
		if err != nil {
			return c, fmt.Errorf("build sink %q: %w", sk.Type, err)
		}
		c.sinks = append(c.sinks, built)
	}
	return c, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
