package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmprotest/openevolve/internal/driver"
	"github.com/mmprotest/openevolve/internal/llmoracle"
	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/runconfig"
	"github.com/mmprotest/openevolve/internal/store"
)

var (
	configPath string
	runID      string
	runsDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start a new run from --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runID == "" {
			runID = uuid.NewString()
		}
		return execRun(cmd, runID)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "continue an existing run from its last recorded generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runID == "" {
			return fmt.Errorf("resume: --run-id is required")
		}
		return execRun(cmd, runID)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().StringVar(&configPath, "config", "", "path to the run's YAML config")
		c.Flags().StringVar(&runID, "run-id", "", "run identifier (generated for `run` if omitted)")
		c.Flags().StringVar(&runsDir, "runs-dir", "runs", "directory under which per-run artifacts are written")
	}
	_ = runCmd.MarkFlagRequired("config")
	_ = resumeCmd.MarkFlagRequired("config")
}

func execRun(cmd *cobra.Command, runID string) error {
	if err := obslog.Configure(filepath.Join(runsDir, runID), verbose); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer obslog.CloseAll()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	evaluators, err := buildEvaluators(cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	oracle, err := buildOracle(cfg)
	if err != nil {
		return err
	}

	runDir := filepath.Join(runsDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	d := driver.New(runID, runDir, cfg, st, oracle, evaluators)

	logger.Info("starting run", zap.String("run_id", runID), zap.String("target", cfg.TargetFile))
	if err := d.Evolve(cmd.Context()); err != nil {
		return fmt.Errorf("evolve: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s complete\n", runID)
	return nil
}

// buildOracle resolves the configured provider to a concrete llmoracle.Oracle.
// Only "gemini" is wired today; llmoracle.Fake stays test-only and is not
// exposed on the CLI.
func buildOracle(cfg *runconfig.Config) (llmoracle.Oracle, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("buildOracle: GEMINI_API_KEY is not set")
		}
		model := cfg.LLM.Model
		if model == "" {
			model = llmoracle.DefaultGeminiModel
		}
		return llmoracle.NewGeminiOracle(context.Background(), apiKey, model)
	default:
		return nil, fmt.Errorf("buildOracle: unknown provider %q", cfg.LLM.Provider)
	}
}
