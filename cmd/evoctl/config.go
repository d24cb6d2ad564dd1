package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mmprotest/openevolve/internal/cascade"
	"github.com/mmprotest/openevolve/internal/runconfig"
)

func loadConfig(path string) (*runconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := runconfig.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEvaluators turns the config's declared evaluator stages into the
// concrete cascade.Evaluator collaborators.
func buildEvaluators(cfg *runconfig.Config) ([]cascade.Evaluator, error) {
	out := make([]cascade.Evaluator, 0, len(cfg.Evaluators))
	for _, e := range cfg.Evaluators {
		timeout := secondsToDuration(e.TimeoutSec)
		switch e.Name {
		case "tests":
			if len(e.TestCommand) == 0 {
				return nil, fmt.Errorf("evaluator %q: test_command is required", e.Name)
			}
			out = append(out, &cascade.TestsEvaluator{Command: e.TestCommand, StageTimeout: timeout})
		case "lints":
			out = append(out, &cascade.LintsEvaluator{MaxAddedLines: e.MaxAddedLines, StageTimeout: timeout})
		case "performance":
			if len(e.PerfCommand) == 0 {
				return nil, fmt.Errorf("evaluator %q: perf_command is required", e.Name)
			}
			out = append(out, &cascade.PerformanceEvaluator{Command: e.PerfCommand, Budget: e.PerfBudget, StageTimeout: timeout})
		default:
			return nil, fmt.Errorf("unknown evaluator %q", e.Name)
		}
	}
	return out, nil
}
