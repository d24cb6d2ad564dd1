// Package driver implements the generation scheduler that orchestrates one
// run end to end: generations x population, LLM calls, patch application,
// evaluation, and persistence.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/mmprotest/openevolve/internal/archive"
	"github.com/mmprotest/openevolve/internal/cascade"
	"github.com/mmprotest/openevolve/internal/llmoracle"
	"github.com/mmprotest/openevolve/internal/metaprompt"
	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/prompt"
	"github.com/mmprotest/openevolve/internal/runconfig"
	"github.com/mmprotest/openevolve/internal/store"
)

// Driver orchestrates one run. It holds transient references to its
// collaborators and is the only writer of new candidates.
type Driver struct {
	RunID   string
	RunDir  string
	Config  *runconfig.Config
	Store   *store.Store
	Archive *archive.Archive
	Meta    *metaprompt.Population
	Prompts *prompt.Assembler
	Cascade *cascade.Cascade
	Evals   []cascade.Evaluator
	Oracle  llmoracle.Oracle

	log *eventLog
}

// New constructs a Driver for one run. Callers supply the already-opened
// collaborators so the driver never owns their lifecycle: the store owns
// durable state, the archive owns the in-memory working set.
func New(runID, runDir string, cfg *runconfig.Config, st *store.Store, oracle llmoracle.Oracle, evaluators []cascade.Evaluator) *Driver {
	specs := make([]archive.MetricSpec, len(cfg.Metrics))
	for i, m := range cfg.Metrics {
		specs[i] = archive.MetricSpec{Name: m.Name, Minimize: m.Minimize}
	}

	return &Driver{
		RunID:   runID,
		RunDir:  runDir,
		Config:  cfg,
		Store:   st,
		Archive: archive.New(specs, cfg.Archive.Capacity, cfg.Archive.NoveltyK),
		Meta:    metaprompt.New(st, cfg.Seed),
		Prompts: prompt.New(st),
		Cascade: cascade.New(cfg.Cascade.MaxParallel, cfg.Cascade.CancelOnFail),
		Evals:   evaluators,
		Oracle:  oracle,
	}
}

// Evolve runs generations from the resumption point through
// Config.Generations-1.
func (d *Driver) Evolve(ctx context.Context) error {
	timer := obslog.StartTimer(obslog.CategoryRun, "Evolve")
	defer timer.Stop()

	if err := d.Config.Validate(); err != nil {
		return fmt.Errorf("evolve: %w", err)
	}
	if _, err := os.Stat(d.Config.TargetFile); err != nil {
		return fmt.Errorf("evolve: target file: %w", err)
	}

	serialized, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("evolve: marshal config: %w", err)
	}
	if err := d.Store.UpsertRun(d.RunID, string(serialized)); err != nil {
		return fmt.Errorf("evolve: upsert_run: %w", err)
	}
	if err := d.Meta.Init(); err != nil {
		return fmt.Errorf("evolve: seed meta-prompts: %w", err)
	}
	if err := os.MkdirAll(d.RunDir, 0755); err != nil {
		return fmt.Errorf("evolve: create run dir: %w", err)
	}
	d.log, err = openEventLog(d.RunDir)
	if err != nil {
		return fmt.Errorf("evolve: open event log: %w", err)
	}

	maxGen, err := d.Store.MaxGeneration(d.RunID)
	if err != nil {
		return fmt.Errorf("evolve: max generation: %w", err)
	}
	if err := d.rebuildArchive(maxGen); err != nil {
		return fmt.Errorf("evolve: rebuild archive: %w", err)
	}

	start := maxGen + 1
	for g := start; g < d.Config.Generations; g++ {
		if err := d.runGeneration(ctx, g); err != nil {
			return fmt.Errorf("evolve: generation %d: %w", g, err)
		}
	}
	return nil
}

// rebuildArchive replays every previously recorded generation's Update so
// the in-memory archive reflects persisted state after a resume.
func (d *Driver) rebuildArchive(maxGen int) error {
	for g := 0; g <= maxGen; g++ {
		candidates, err := d.Store.GetCandidatesByRun(d.RunID, g)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			continue
		}
		ids := candidateIDs(candidates)
		evals, err := d.Store.GetCandidateEvals(ids)
		if err != nil {
			return err
		}
		d.Archive.Update(candidates, evals, g)
	}
	return nil
}

func candidateIDs(candidates []store.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

// deterministicShuffle shuffles items in place using a seed derived from the
// run seed and generation index, so reruns of the same generation see the
// same meta-prompt order.
func deterministicShuffle[T any](items []T, seed int64, generation int) {
	r := rand.New(rand.NewSource(seed + int64(generation)*1_000_003))
	r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

func genDirName(runDir string, generation int) string {
	return filepath.Join(runDir, fmt.Sprintf("gen_%03d", generation))
}
