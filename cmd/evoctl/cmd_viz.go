package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmprotest/openevolve/internal/store"
)

var (
	vizRunID      string
	vizMetricAxes []string
	vizOut        string
)

// vizCmd writes a CSV of a run's candidates projected onto the requested
// metric axes, plus novelty/age/generation, for plotting with an external
// tool. Rendering itself stays out of process.
var vizCmd = &cobra.Command{
	Use:   "viz",
	Short: "export a run's candidates as CSV for external plotting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if vizRunID == "" {
			return fmt.Errorf("viz: --run-id is required")
		}
		if len(vizMetricAxes) == 0 {
			return fmt.Errorf("viz: at least one --metric-axes is required")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		candidates, err := st.GetCandidatesByRun(vizRunID, -1)
		if err != nil {
			return fmt.Errorf("load candidates: %w", err)
		}
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		evals, err := st.GetCandidateEvals(ids)
		if err != nil {
			return fmt.Errorf("load evaluations: %w", err)
		}

		out := os.Stdout
		if vizOut != "" && vizOut != "-" {
			f, err := os.Create(vizOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		w := csv.NewWriter(out)
		header := append([]string{"candidate_id", "generation", "novelty", "age"}, vizMetricAxes...)
		if err := w.Write(header); err != nil {
			return err
		}
		for _, c := range candidates {
			row := []string{
				c.ID,
				strconv.Itoa(c.Generation),
				strconv.FormatFloat(c.Novelty, 'f', 4, 64),
				strconv.Itoa(c.Age),
			}
			for _, m := range vizMetricAxes {
				row = append(row, strconv.FormatFloat(evals[c.ID][m], 'f', 6, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	},
}

func init() {
	vizCmd.Flags().StringVar(&vizRunID, "run-id", "", "run identifier")
	vizCmd.Flags().StringSliceVar(&vizMetricAxes, "metric-axes", nil, "metric names to include as CSV columns (repeatable)")
	vizCmd.Flags().StringVar(&vizOut, "out", "-", "output path, or - for stdout")
}
