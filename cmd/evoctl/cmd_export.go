package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmprotest/openevolve/internal/archive"
	"github.com/mmprotest/openevolve/internal/store"
)

var (
	exportRunID    string
	exportOut      string
	exportMetrics  []string
	exportMinimize []string
	exportCapacity int
	exportNoveltyK int
)

var exportArchiveCmd = &cobra.Command{
	Use:   "export-archive",
	Short: "rebuild a run's archive from the store and dump its snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportRunID == "" {
			return fmt.Errorf("export-archive: --run-id is required")
		}
		if len(exportMetrics) == 0 {
			return fmt.Errorf("export-archive: at least one --metric is required")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		minimizeSet := make(map[string]bool, len(exportMinimize))
		for _, m := range exportMinimize {
			minimizeSet[m] = true
		}
		specs := make([]archive.MetricSpec, len(exportMetrics))
		for i, m := range exportMetrics {
			specs[i] = archive.MetricSpec{Name: m, Minimize: minimizeSet[m]}
		}

		a := archive.New(specs, exportCapacity, exportNoveltyK)
		maxGen, err := st.MaxGeneration(exportRunID)
		if err != nil {
			return fmt.Errorf("max generation: %w", err)
		}
		for g := 0; g <= maxGen; g++ {
			candidates, err := st.GetCandidatesByRun(exportRunID, g)
			if err != nil {
				return fmt.Errorf("load generation %d: %w", g, err)
			}
			if len(candidates) == 0 {
				continue
			}
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			evals, err := st.GetCandidateEvals(ids)
			if err != nil {
				return fmt.Errorf("load evaluations for generation %d: %w", g, err)
			}
			a.Update(candidates, evals, g)
		}

		data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal archive: %w", err)
		}
		if exportOut == "" || exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		return os.WriteFile(exportOut, data, 0644)
	},
}

func init() {
	exportArchiveCmd.Flags().StringVar(&exportRunID, "run-id", "", "run identifier")
	exportArchiveCmd.Flags().StringVar(&exportOut, "out", "-", "output path, or - for stdout")
	exportArchiveCmd.Flags().StringSliceVar(&exportMetrics, "metric", nil, "metric name tracked by the archive (repeatable)")
	exportArchiveCmd.Flags().StringSliceVar(&exportMinimize, "minimize", nil, "metric names to treat as minimize-better (repeatable)")
	exportArchiveCmd.Flags().IntVar(&exportCapacity, "capacity", 100, "archive capacity")
	exportArchiveCmd.Flags().IntVar(&exportNoveltyK, "novelty-k", 5, "novelty neighborhood size")
}
