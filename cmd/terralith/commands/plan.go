package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "plan [path...]",
		Short: "Show the evaluation order without provisioning",
		Long: `Build the reference graph and print the evaluation plan: which
declarations run at which level, and what each one waits for. Nothing is
provisioned.`,
		Example: `  # Show the plan for the current directory
  terralith plan

  # Emit the reference graph in Graphviz DOT format
  terralith plan --dot deploy.cue | dot -Tsvg > graph.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, graph, err := loadDocument(args)
			if err != nil {
				return err
			}

			if dot {
				fmt.Print(graph.ToDOT())
				return nil
			}

			log.Debug().Int("nodes", len(graph.Nodes)).Msg("plan built")
			for i, level := range graph.Levels {
				fmt.Printf("level %d:\n", i)
				for _, id := range level {
					node := graph.Nodes[id]
					kind, _ := store.Lookup(id)
					if len(node.Dependencies) == 0 {
						fmt.Printf("  %s (%s)\n", id, kind)
						continue
					}
					fmt.Printf("  %s (%s) after %s\n",
						id, kind, strings.Join(node.Dependencies, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "emit the reference graph in DOT format")

	return cmd
}
