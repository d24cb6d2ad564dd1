package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mmprotest/openevolve/internal/block"
	"github.com/mmprotest/openevolve/internal/cascade"
	"github.com/mmprotest/openevolve/internal/llmoracle"
	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/patch"
	"github.com/mmprotest/openevolve/internal/prompt"
	"github.com/mmprotest/openevolve/internal/store"
)

// runGeneration runs one full generation: meta-prompt selection, parent
// sampling, population-slot dispatch, archive/meta-prompt updates, and
// log event emission.
func (d *Driver) runGeneration(ctx context.Context, g int) error {
	timer := obslog.StartTimer(obslog.CategoryRun, fmt.Sprintf("generation %d", g))
	defer timer.Stop()

	topK := d.Config.SelectionTopK
	if topK < 1 {
		topK = 1
	}
	metaPrompts, err := d.Meta.SelectTop(topK)
	if err != nil {
		return fmt.Errorf("select meta-prompts: %w", err)
	}
	deterministicShuffle(metaPrompts, d.Config.Seed, g)

	mixture := d.Archive.SampleMixture(d.Config.Sampler.ElitesK, d.Config.Sampler.NovelM, 1)

	genDir := genDirName(d.RunDir, g)
	if err := os.MkdirAll(genDir, 0755); err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}

	contributions := make(map[string][]string)

	for slot := 0; slot < d.Config.PopulationSize; slot++ {
		mp := metaPrompts[slot%len(metaPrompts)]

		if err := d.runSlot(ctx, g, slot, genDir, mp, mixture, contributions); err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
	}

	if err := d.updateArchiveAndMetaPrompts(g, contributions); err != nil {
		return err
	}

	if d.log != nil {
		_ = d.log.Append(map[string]any{
			"event":         "generation_complete",
			"generation":    g,
			"contributions": len(contributions),
		})
	}
	return nil
}

func (d *Driver) runSlot(ctx context.Context, g, slot int, genDir string, mp store.MetaPrompt, mixture []string, contributions map[string][]string) error {
	baseline, err := os.ReadFile(d.Config.TargetFile)
	if err != nil {
		return fmt.Errorf("read target file: %w", err)
	}
	regions := block.Extract(string(baseline))

	promptText, err := d.Prompts.Assemble(
		d.RunID,
		d.Config.TokenBudget,
		d.Config.TaskDescription,
		d.Config.TargetFile,
		regionRanges(regions),
		d.Config.MetricNames(),
		prompt.SamplerConfig{
			ElitesK:         d.Config.Sampler.ElitesK,
			NovelM:          d.Config.Sampler.NovelM,
			IncludeFailures: d.Config.Sampler.IncludeFailures,
		},
		mp.Template,
	)
	if err != nil {
		return fmt.Errorf("assemble prompt: %w", err)
	}

	promptPath := filepath.Join(genDir, fmt.Sprintf("candidate_%02d_prompt.txt", slot))
	if err := os.WriteFile(promptPath, []byte(promptText), 0644); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}

	if d.Config.DryRun {
		return nil
	}

	scope := patch.Scope(d.Config.Scope)
	blockID := ""
	if scope == patch.ScopeBlocks {
		blockID = targetRegionName(regions)
	}

	patchText, llmErr := d.callLLM(ctx, promptText, mp, blockID)
	if llmErr != nil {
		candID := uuid.NewString()
		return d.Store.InsertCandidate(store.Candidate{
			ID:           candID,
			RunID:        d.RunID,
			ParentIDs:    mixture,
			MetaPromptID: mp.ID,
			TargetFile:   d.Config.TargetFile,
			Generation:   g,
			Error:        llmErr.Error(),
		})
	}

	candidateID := uuid.NewString()
	outcome := patch.Apply(string(baseline), patchText, scope)
	if !outcome.Success {
		errMsg := ""
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}
		return d.Store.InsertCandidate(store.Candidate{
			ID:           candidateID,
			RunID:        d.RunID,
			ParentIDs:    mixture,
			MetaPromptID: mp.ID,
			TargetFile:   d.Config.TargetFile,
			PatchText:    patchText,
			Generation:   g,
			Error:        errMsg,
		})
	}

	if err := os.WriteFile(d.Config.TargetFile, []byte(outcome.NewSource), 0644); err != nil {
		return fmt.Errorf("write applied source: %w", err)
	}

	candidate := store.Candidate{
		ID:           candidateID,
		RunID:        d.RunID,
		ParentIDs:    mixture,
		MetaPromptID: mp.ID,
		TargetFile:   d.Config.TargetFile,
		PatchText:    patchText,
		CodeSnapshot: outcome.NewSource,
		Generation:   g,
	}
	if err := d.Store.InsertCandidate(candidate); err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	contributions[mp.ID] = append(contributions[mp.ID], candidateID)

	results := d.Cascade.Run(ctx, d.Evals, filepath.Dir(d.Config.TargetFile), candidate)
	evals := resultsToEvaluations(results)
	if err := d.Store.InsertEvaluations(candidateID, evals); err != nil {
		return fmt.Errorf("insert evaluations: %w", err)
	}

	if scope == patch.ScopeFile && d.Config.Cascade.ApplySafeRevert && anyStageFailed(results) {
		if err := os.WriteFile(d.Config.TargetFile, baseline, 0644); err != nil {
			return fmt.Errorf("safe-revert target file: %w", err)
		}
	}

	// Unconditionally revert to the generation's pre-application baseline
	// before the next slot: each candidate is evaluated in isolation
	// against the baseline, even when it passed.
	if err := os.WriteFile(d.Config.TargetFile, baseline, 0644); err != nil {
		return fmt.Errorf("revert target file: %w", err)
	}

	if d.log != nil {
		_ = d.log.Append(map[string]any{
			"event":      "candidate",
			"generation": g,
			"slot":       slot,
			"candidate":  candidateID,
			"stages":     len(results),
		})
	}
	return nil
}

func (d *Driver) callLLM(ctx context.Context, promptText string, mp store.MetaPrompt, blockID string) (string, error) {
	req := llmoracle.Request{
		Prompt:      promptText,
		System:      mp.Template,
		Model:       d.Config.LLM.Model,
		N:           d.Config.LLM.N,
		Temperature: d.Config.LLM.Temperature,
	}

	type result struct {
		resp llmoracle.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := llmoracle.CallWithRetry(ctx, d.Oracle, req, d.Config.LLM.MaxAttempts)
		done <- result{resp, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return "", r.err
	}
	if len(r.resp.Candidates) == 0 {
		return "", fmt.Errorf("llm returned no candidates")
	}

	hunks := llmoracle.ParseHunks(r.resp.Candidates[0])
	return llmoracle.HunksToPatchText(hunks, blockID), nil
}

func (d *Driver) updateArchiveAndMetaPrompts(g int, contributions map[string][]string) error {
	candidates, err := d.Store.GetCandidatesByRun(d.RunID, g)
	if err != nil {
		return fmt.Errorf("reload candidates: %w", err)
	}
	ids := candidateIDs(candidates)
	evals, err := d.Store.GetCandidateEvals(ids)
	if err != nil {
		return fmt.Errorf("reload evaluations: %w", err)
	}

	d.Archive.Update(candidates, evals, g)

	for _, e := range d.Archive.Snapshot() {
		if e.Generation != g {
			continue
		}
		if err := d.Store.UpdateCandidateNoveltyAge(e.CandidateID, e.Novelty, e.Age); err != nil {
			return fmt.Errorf("write back novelty/age: %w", err)
		}
	}

	var contributedIDs []string
	for _, group := range contributions {
		contributedIDs = append(contributedIDs, group...)
	}
	contributedEvals, err := d.Store.GetCandidateEvals(contributedIDs)
	if err != nil {
		return fmt.Errorf("load contributed evaluations: %w", err)
	}

	if err := d.Meta.Evolve(contributions, contributedEvals); err != nil {
		return fmt.Errorf("evolve meta-prompts: %w", err)
	}
	return nil
}

func anyStageFailed(results map[string]cascade.Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func resultsToEvaluations(results map[string]cascade.Result) []store.Evaluation {
	out := make([]store.Evaluation, 0, len(results))
	for metric, r := range results {
		out = append(out, store.Evaluation{
			Metric: metric,
			Value:  r.Value,
			Passed: r.Passed,
			CostMS: r.CostMS,
			Error:  r.Error,
		})
	}
	return out
}

func regionRanges(regions []block.Region) []prompt.RegionRange {
	out := make([]prompt.RegionRange, len(regions))
	for i, r := range regions {
		out[i] = prompt.RegionRange{Name: r.Name, StartLine: r.StartLine + 1, EndLine: r.EndLine + 1}
	}
	return out
}

func targetRegionName(regions []block.Region) string {
	if len(regions) == 1 {
		return regions[0].Name
	}
	return ""
}
