package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/adapter/outbound/state"
	"github.com/evalgate/evalgate/internal/config"
)

var baselineNote string

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage registered baseline runs",
	Long: `Baseline manages the baselines file: the run registered per eval id as
the reference for future comparisons.`,
}

var baselineSetCmd = &cobra.Command{
	Use:   "set <eval-id> <run-id>",
	Short: "Register a run as an eval's baseline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		baselines, err := baselineStore()
		if err != nil {
			return err
		}
		if err := baselines.Set(args[0], args[1], baselineNote); err != nil {
			return err
		}
		fmt.Printf("baseline for %s set to %s\n", args[0], args[1])
		return nil
	},
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered baselines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		baselines, err := baselineStore()
		if err != nil {
			return err
		}
		ids, err := baselines.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			b, _, err := baselines.Get(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", id, b.RunID, b.RegisteredAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var baselineDeleteCmd = &cobra.Command{
	Use:   "delete <eval-id>",
	Short: "Remove an eval's baseline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baselines, err := baselineStore()
		if err != nil {
			return err
		}
		if err := baselines.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("baseline for %s removed\n", args[0])
		return nil
	},
}

func baselineStore() (*state.BaselineStore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return state.NewBaselineStore(cfg.Baselines.Path, newLogger(cfg.Logging)), nil
}

func init() {
	baselineSetCmd.Flags().StringVar(&baselineNote, "note", "", "operator note stored with the baseline")
	baselineCmd.AddCommand(baselineSetCmd, baselineListCmd, baselineDeleteCmd)
	rootCmd.AddCommand(baselineCmd)
}
