package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/config"
	"github.com/evalgate/evalgate/internal/domain/policy"
	"github.com/evalgate/evalgate/internal/service"
)

var (
	policyText   string
	policyPrompt string
	policyName   string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and evaluate guardrail policies",
}

var policyCheckCmd = &cobra.Command{
	Use:     "check <policy-file>...",
	Aliases: []string{"validate"},
	Short:   "Check policy documents",
	Long: `Check parses and validates policy documents, reporting every finding
rather than stopping at the first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed bool
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			p, err := policy.ParseDocument(data)
			if err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed = true
				continue
			}
			if diags := p.Validate(); len(diags) > 0 {
				for _, d := range diags {
					fmt.Printf("%s: %s\n", path, d)
				}
				failed = true
				continue
			}
			fmt.Printf("%s: ok (%d rules)\n", path, len(p.Rules))
		}
		if failed {
			return errors.New("validation failed")
		}
		return nil
	},
}

var policyEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate text against the configured policies",
	Long: `Eval registers the config's policy files and checks a text against
them. Text comes from --text or stdin. The command fails when a rule
blocks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Logging)

		svc, err := service.NewPolicyService(logger, nil)
		if err != nil {
			return err
		}
		if len(cfg.PolicyFiles) == 0 {
			return errors.New("no policy_files configured")
		}
		for _, path := range cfg.PolicyFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := svc.LoadAndRegister(data); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		text := policyText
		if text == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			text = string(data)
		}

		result, err := svc.Evaluate(cmd.Context(), service.EvaluateRequest{
			Text:       text,
			Prompt:     policyPrompt,
			PolicyName: policyName,
		})
		if err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if result.Action == policy.ActionBlock {
			return fmt.Errorf("blocked by rule %s", result.TriggeredRule.ID)
		}
		return nil
	},
}

func init() {
	policyEvalCmd.Flags().StringVar(&policyText, "text", "", "text to evaluate (default: stdin)")
	policyEvalCmd.Flags().StringVar(&policyPrompt, "prompt", "", "prompt that produced the text")
	policyEvalCmd.Flags().StringVar(&policyName, "policy", "", "evaluate only this policy")
	policyCmd.AddCommand(policyCheckCmd, policyEvalCmd)
	rootCmd.AddCommand(policyCmd)
}
