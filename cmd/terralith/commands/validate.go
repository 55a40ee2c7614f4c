package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terralith/terralith/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var policyDir string

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate declaration documents",
		Long: `Validate CUE declaration documents without provisioning anything.

This command checks:
  - CUE syntax and declaration shapes
  - Identifier uniqueness and reference resolution
  - Reference cycles
  - Policy compliance (OPA/Rego)`,
		Example: `  # Validate documents in the current directory
  terralith validate

  # Validate a specific file with extra policies
  terralith validate --policy-dir ./policies deploy.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, graph, err := loadDocument(args)
			if err != nil {
				return err
			}
			log.Info().
				Int("declarations", store.Len()).
				Int("levels", graph.Depth).
				Msg("document validated")

			engine := policy.NewEngine(log.Logger)
			if policyDir != "" {
				if err := engine.LoadDir(policyDir); err != nil {
					return err
				}
			}
			result, err := engine.Evaluate(cmd.Context(), policy.BuildInput(store, graph))
			if err != nil {
				return err
			}
			for _, v := range result.Violations {
				if v.Severity == policy.SeverityError {
					fmt.Printf("error: %s (%s)\n", v.Message, v.Policy)
				} else {
					fmt.Printf("warning: %s (%s)\n", v.Message, v.Policy)
				}
			}
			if !result.Allowed {
				return fmt.Errorf("policy check failed with %d violations", len(result.Violations))
			}

			fmt.Printf("OK: %d declarations across %d levels\n", store.Len(), graph.Depth)
			return nil
		},
	}

	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory with additional .rego policies")

	return cmd
}
