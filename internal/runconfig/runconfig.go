// Package runconfig is the plain-struct shape of a run's configuration:
// LLM settings, archive parameters, cascade parameters,
// generation/population counts, sampler weights, and the prompt token
// budget. File IO, environment overlay, and flag parsing are collaborator
// concerns (cmd/evoctl); this package only defines and validates the shape.
package runconfig

import (
	"fmt"
	"time"
)

// LLMConfig names the oracle provider and model to use.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	N           int           `yaml:"n"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// MetricConfig declares one metric tracked by the archive and the
// top-candidate scorer.
type MetricConfig struct {
	Name     string `yaml:"name"`
	Minimize bool   `yaml:"minimize"`
}

// ArchiveConfig parameterizes the archive.
type ArchiveConfig struct {
	Capacity int `yaml:"capacity"`
	NoveltyK int `yaml:"novelty_k"`
}

// CascadeConfig parameterizes the evaluator cascade.
type CascadeConfig struct {
	MaxParallel     int  `yaml:"max_parallel"`
	CancelOnFail    bool `yaml:"cancel_on_fail"`
	ApplySafeRevert bool `yaml:"apply_safe_revert"`
}

// SamplerConfig controls how the prompt assembler draws exemplars.
type SamplerConfig struct {
	ElitesK         int `yaml:"elites_k"`
	NovelM          int `yaml:"novel_m"`
	IncludeFailures int `yaml:"include_failures"`
}

// EvaluatorConfig names one reference evaluator stage and its parameters.
type EvaluatorConfig struct {
	Name          string        `yaml:"name"` // "tests", "lints", "performance"
	TimeoutSec    float64       `yaml:"timeout_sec"`
	TestCommand   []string      `yaml:"test_command,omitempty"`
	MaxAddedLines int           `yaml:"max_added_lines,omitempty"`
	PerfCommand   []string      `yaml:"perf_command,omitempty"`
	PerfBudget    time.Duration `yaml:"perf_budget,omitempty"`
}

// Config is a complete run configuration.
type Config struct {
	TargetFile      string `yaml:"target_file"`
	TaskDescription string `yaml:"task_description"`
	Scope           string `yaml:"scope"` // "blocks" or "file"
	Generations     int    `yaml:"generations"`
	PopulationSize  int    `yaml:"population_size"`
	SelectionTopK   int    `yaml:"selection_top_k"`
	Seed            int64  `yaml:"seed"`
	TokenBudget     int    `yaml:"token_budget"`
	DryRun          bool   `yaml:"dry_run"`

	Metrics    []MetricConfig    `yaml:"metrics"`
	Archive    ArchiveConfig     `yaml:"archive"`
	Cascade    CascadeConfig     `yaml:"cascade"`
	Sampler    SamplerConfig     `yaml:"sampler"`
	LLM        LLMConfig         `yaml:"llm"`
	Evaluators []EvaluatorConfig `yaml:"evaluators"`
}

// DefaultConfig returns sane defaults for every tunable.
func DefaultConfig() *Config {
	return &Config{
		Scope:          "blocks",
		Generations:    10,
		PopulationSize: 4,
		SelectionTopK:  2,
		Seed:           1,
		TokenBudget:    8000,
		Archive: ArchiveConfig{
			Capacity: 100,
			NoveltyK: 5,
		},
		Cascade: CascadeConfig{
			MaxParallel:     4,
			CancelOnFail:    false,
			ApplySafeRevert: true,
		},
		Sampler: SamplerConfig{
			ElitesK:         3,
			NovelM:          2,
			IncludeFailures: 2,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.7,
			N:           1,
			Timeout:     2 * time.Minute,
			MaxAttempts: 5,
		},
	}
}

// Validate surfaces configuration errors so the run can abort before its
// first generation.
func (c *Config) Validate() error {
	if c.TargetFile == "" {
		return fmt.Errorf("runconfig: target_file is required")
	}
	if c.Scope != "blocks" && c.Scope != "file" {
		return fmt.Errorf("runconfig: scope must be %q or %q, got %q", "blocks", "file", c.Scope)
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("runconfig: at least one metric is required")
	}
	if c.Generations < 1 {
		return fmt.Errorf("runconfig: generations must be >= 1")
	}
	if c.PopulationSize < 1 {
		return fmt.Errorf("runconfig: population_size must be >= 1")
	}
	for _, e := range c.Evaluators {
		switch e.Name {
		case "tests", "lints", "performance":
		default:
			return fmt.Errorf("runconfig: unknown evaluator %q", e.Name)
		}
	}
	return nil
}

// MetricNames returns the configured metric names in declared order.
func (c *Config) MetricNames() []string {
	names := make([]string, len(c.Metrics))
	for i, m := range c.Metrics {
		names[i] = m.Name
	}
	return names
}

// MinimizeMap returns a name->minimize lookup built from Metrics.
func (c *Config) MinimizeMap() map[string]bool {
	out := make(map[string]bool, len(c.Metrics))
	for _, m := range c.Metrics {
		out[m.Name] = m.Minimize
	}
	return out
}
