package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmprotest/openevolve/internal/store"
)

var (
	inspectRunID   string
	inspectTopK    int
	inspectMetrics []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "print the top candidates recorded for a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectRunID == "" {
			return fmt.Errorf("inspect: --run-id is required")
		}
		if len(inspectMetrics) == 0 {
			return fmt.Errorf("inspect: at least one --metric is required")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		minimize := make(map[string]bool, len(inspectMetrics))
		top, err := st.TopCandidates(inspectRunID, inspectTopK, inspectMetrics, minimize)
		if err != nil {
			return fmt.Errorf("top candidates: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintf(w, "CANDIDATE\tGENERATION\tNOVELTY\tAGE\tERROR\n")
		for _, c := range top {
			errText := c.Error
			if errText == "" {
				errText = "-"
			}
			fmt.Fprintf(w, "%s\t%d\t%.4f\t%d\t%s\n", c.ID, c.Generation, c.Novelty, c.Age, errText)
		}
		return w.Flush()
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectRunID, "run-id", "", "run identifier")
	inspectCmd.Flags().IntVar(&inspectTopK, "top", 10, "number of candidates to print")
	inspectCmd.Flags().StringSliceVar(&inspectMetrics, "metric", nil, "metric name to rank by (repeatable)")
}
