package commands

import (
	"fmt"

	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `List the runs recorded in the state database, newest first, or show the
condition results of one run.`,
		Example: `  # Last ten runs
  tsa history --limit 10

  # Results of one run as JSON
  tsa history 5f0c... -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.OpenStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no state database configured")
			}
			defer func() { _ = store.Close() }()

			if len(args) == 0 {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				return output.RenderRuns(cc.Renderer, runs)
			}

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			recs, err := store.ListResults(run.ID)
			if err != nil {
				return err
			}
			return output.RenderRunResults(cc.Renderer, run, recs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}
