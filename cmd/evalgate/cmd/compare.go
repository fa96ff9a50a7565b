package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/adapter/outbound/state"
	"github.com/evalgate/evalgate/internal/config"
	"github.com/evalgate/evalgate/internal/domain/compare"
)

var (
	compareThreshold      float64
	compareMinRegressions int
	compareBaselineEval   string
)

var compareCmd = &cobra.Command{
	Use:   "compare <candidate-run-id> [baseline-run-id]",
	Short: "Diff two runs and gate on regressions",
	Long: `Compare diffs a candidate run against a baseline run per (item, score)
pair and classifies each change as improved, regressed, or unchanged.

The baseline run is given explicitly, or resolved from the registered
baseline of an eval with --baseline-eval. The command fails when any
score's regression count reaches --min-regressions: the deployment gate.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Logging)

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		baselineRunID, err := resolveBaselineRun(cfg, args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		baseline, err := store.GetRun(ctx, baselineRunID)
		if err != nil {
			return fmt.Errorf("baseline run %s: %w", baselineRunID, err)
		}
		candidate, err := store.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("candidate run %s: %w", args[0], err)
		}

		result := compare.Compare(baseline, candidate, compare.Options{Threshold: compareThreshold})
		if err := printJSON(result); err != nil {
			return err
		}

		if gated := result.GateRegressions(compareMinRegressions); len(gated) > 0 {
			return fmt.Errorf("regressions detected in: %s", strings.Join(gated, ", "))
		}
		return nil
	},
}

// resolveBaselineRun picks the baseline run id from the second argument or
// the registered baseline of --baseline-eval.
func resolveBaselineRun(cfg *config.Config, args []string) (string, error) {
	if len(args) == 2 {
		return args[1], nil
	}
	if compareBaselineEval == "" {
		return "", fmt.Errorf("give a baseline run id or --baseline-eval")
	}

	baselines := state.NewBaselineStore(cfg.Baselines.Path, nil)
	b, ok, err := baselines.Get(compareBaselineEval)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no baseline registered for eval %q", compareBaselineEval)
	}
	return b.RunID, nil
}

func init() {
	compareCmd.Flags().Float64Var(&compareThreshold, "threshold", 0, "significance threshold (default 0.01)")
	compareCmd.Flags().IntVar(&compareMinRegressions, "min-regressions", 0, "gate regression count (default 1)")
	compareCmd.Flags().StringVar(&compareBaselineEval, "baseline-eval", "", "resolve the baseline run from this eval's registered baseline")
	rootCmd.AddCommand(compareCmd)
}
