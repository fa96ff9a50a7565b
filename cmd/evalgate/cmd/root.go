// Package cmd provides the CLI commands for evalgate.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "evalgate",
	Short: "evalgate - AI evaluation gate",
	Long: `evalgate runs evaluations of AI systems: datasets in, generations
scored, results fanned out to sinks, runs compared against baselines, and
outputs checked against guardrail policies.

Quick start:
  1. Create a config file: evalgate.yaml
  2. Declare an eval with a dataset and scorers
  3. Run: evalgate run <eval-name>

Configuration:
  Config is loaded from evalgate.yaml in the current directory,
  $HOME/.evalgate/, or /etc/evalgate/.

  Environment variables can override config values with the EVALGATE_ prefix.
  Example: EVALGATE_WORKER_MAX_CONCURRENT=5

Commands:
  run         Run a declared evaluation in the foreground
  worker      Start the background task worker
  compare     Diff two runs and gate on regressions
  baseline    Manage registered baseline runs
  policy      Validate and evaluate guardrail policies
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./evalgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
