package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terralith/terralith/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var (
		historyPath string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded evaluation runs",
		Long: `List runs recorded with apply --history, most recent first. Records
carry run metadata and output names only; output values are never stored.`,
		Example: `  # Show the last 20 runs
  terralith runs --history runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Printf("%s  %-9s  %6dms  %s\n",
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Status, run.DurationMs, run.ID)
				if run.Error != "" {
					fmt.Printf("    %s\n", run.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", "runs.db", "SQLite file with run history")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")

	return cmd
}
