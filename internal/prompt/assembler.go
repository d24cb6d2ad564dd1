// Package prompt assembles a single token-budgeted, long-context prompt
// from a run's task description, target region ranges, archive exemplars
// (elite + novel), and recent failures.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mmprotest/openevolve/internal/archive"
	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/store"
)

// RegionRange names a mutable region and the 1-based line span it occupies,
// for display in the prompt header only (the driver/patch layer reads
// regions fresh from the file; this is a display projection).
type RegionRange struct {
	Name      string
	StartLine int
	EndLine   int
}

// SamplerConfig controls how many exemplars of each flavor the assembler
// draws.
type SamplerConfig struct {
	ElitesK         int
	NovelM          int
	IncludeFailures int
}

// Assembler builds prompts against a run's persisted candidates.
type Assembler struct {
	Store *store.Store
}

// New constructs an Assembler backed by st.
func New(st *store.Store) *Assembler {
	return &Assembler{Store: st}
}

// Assemble produces the full prompt text for one population slot. metrics
// is the run's declared metric list, used both for the header and for
// elite scoring (every metric is treated as maximize at this layer).
func (a *Assembler) Assemble(
	runID string,
	tokenBudget int,
	taskDescription string,
	targetFile string,
	regions []RegionRange,
	metrics []string,
	sampler SamplerConfig,
	metaPromptTemplate string,
) (string, error) {
	timer := obslog.StartTimer(obslog.CategoryPrompt, "Assemble")
	defer timer.Stop()

	sections := []section{
		{name: "header", text: buildHeader(targetFile, runID, metrics, taskDescription, regions)},
		{name: "meta-prompt", text: strings.TrimSpace(metaPromptTemplate)},
	}

	elites, err := buildEliteSummaries(a.Store, runID, sampler.ElitesK, metrics)
	if err != nil {
		return "", fmt.Errorf("assemble: elite summaries: %w", err)
	}
	if elites != "" {
		sections = append(sections, section{name: "elites", text: elites})
	}

	novel, err := buildNovelSummaries(a.Store, runID, sampler.NovelM, metrics)
	if err != nil {
		return "", fmt.Errorf("assemble: novel summaries: %w", err)
	}
	if novel != "" {
		sections = append(sections, section{name: "novel", text: novel})
	}

	failures, err := buildFailureSummaries(a.Store, runID, sampler.IncludeFailures)
	if err != nil {
		return "", fmt.Errorf("assemble: failure summaries: %w", err)
	}
	if failures != "" {
		sections = append(sections, section{name: "failures", text: failures})
	}

	sections = append(sections, section{name: "closing", text: closingInstructions()})

	return budgetAssemble(sections, tokenBudget), nil
}

func buildHeader(targetFile, runID string, metrics []string, taskDescription string, regions []RegionRange) string {
	var regionText string
	if len(regions) == 0 {
		regionText = "entire file"
	} else {
		var parts []string
		for _, r := range regions {
			parts = append(parts, fmt.Sprintf("%s (lines %d-%d)", r.Name, r.StartLine, r.EndLine))
		}
		regionText = strings.Join(parts, ", ")
	}

	return fmt.Sprintf(
		"You are optimizing %q in run %s.\nMetrics: %s.\nGoal: %s\nEditable region(s): %s.",
		targetFile, runID, strings.Join(metrics, ", "), taskDescription, regionText,
	)
}

func closingInstructions() string {
	return "Respond with zero or more hunks in exactly this format:\n" +
		"<<<<<<< SEARCH\n<old>\n=======\n<new>\n>>>>>>> REPLACE\n" +
		"Each SEARCH block must match existing file content verbatim. " +
		"Do not include explanation outside the hunks."
}

// summary renders one candidate exemplar: id, generation, novelty, metric
// line, patch text (or <empty>), and the first 12 lines of the code
// snapshot.
func summary(label string, c store.Candidate, novelty float64, metrics map[string]float64) string {
	var metricParts []string
	for name, v := range metrics {
		metricParts = append(metricParts, fmt.Sprintf("%s=%.4f", name, v))
	}
	patch := c.PatchText
	if patch == "" {
		patch = "<empty>"
	}
	snippet := firstNLines(c.CodeSnapshot, 12)

	return fmt.Sprintf(
		"[%s] candidate=%s gen=%d novelty=%.3f\nmetrics: %s\npatch:\n%s\ncode:\n%s",
		label, c.ID, c.Generation, novelty, strings.Join(metricParts, ", "), patch, snippet,
	)
}

func firstNLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func buildEliteSummaries(st *store.Store, runID string, k int, metrics []string) (string, error) {
	if k <= 0 {
		return "", nil
	}
	minimize := make(map[string]bool, len(metrics)) // maximize every metric at this layer
	top, err := st.TopCandidates(runID, k, metrics, minimize)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "", nil
	}

	ids := make([]string, len(top))
	for i, c := range top {
		ids[i] = c.ID
	}
	evals, err := st.GetCandidateEvals(ids)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, c := range top {
		parts = append(parts, summary("elite", c, c.Novelty, evals[c.ID]))
	}
	return strings.Join(parts, "\n---\n"), nil
}

func buildNovelSummaries(st *store.Store, runID string, m int, metrics []string) (string, error) {
	if m <= 0 {
		return "", nil
	}
	candidates, err := st.GetCandidatesByRun(runID, -1)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	evals, err := st.GetCandidateEvals(ids)
	if err != nil {
		return "", err
	}

	specs := make([]archive.MetricSpec, len(metrics))
	for i, name := range metrics {
		specs[i] = archive.MetricSpec{Name: name, Minimize: false}
	}

	transient := archive.New(specs, len(candidates)+1, 5)
	transient.Update(candidates, evals, maxGeneration(candidates))

	ids = transient.SampleMixture(0, m, 0)
	if len(ids) == 0 {
		return "", nil
	}

	byID := make(map[string]store.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	entriesByID := make(map[string]archive.Entry)
	for _, e := range transient.Snapshot() {
		entriesByID[e.CandidateID] = e
	}

	var parts []string
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		parts = append(parts, summary("novel", c, entriesByID[id].Novelty, evals[id]))
	}
	return strings.Join(parts, "\n---\n"), nil
}

func buildFailureSummaries(st *store.Store, runID string, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	failing, err := st.RecentFailingCandidates(runID, limit)
	if err != nil {
		return "", err
	}
	if len(failing) == 0 {
		return "", nil
	}

	var parts []string
	for _, c := range failing {
		reason, _ := st.FailureReason(c.ID)
		if reason == "" {
			reason = c.Error
		}
		patch := c.PatchText
		if patch == "" {
			patch = "<empty>"
		}
		parts = append(parts, fmt.Sprintf("[failure] candidate=%s patch:\n%s\nerror: %s", c.ID, patch, reason))
	}
	return strings.Join(parts, "\n---\n"), nil
}

func maxGeneration(candidates []store.Candidate) int {
	max := 0
	for _, c := range candidates {
		if c.Generation > max {
			max = c.Generation
		}
	}
	return max
}
