package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmprotest/openevolve/internal/cascade"
	"github.com/mmprotest/openevolve/internal/llmoracle"
	"github.com/mmprotest/openevolve/internal/runconfig"
	"github.com/mmprotest/openevolve/internal/store"
)

const baselineSource = "# EVOLVE-BLOCK-START solver\ntotal = 0\nreturn total\n# EVOLVE-BLOCK-END\n"

func newTestDriver(t *testing.T, oracle llmoracle.Oracle) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()

	target := filepath.Join(dir, "solver.py")
	require.NoError(t, os.WriteFile(target, []byte(baselineSource), 0644))

	st, err := store.Open(filepath.Join(dir, "run.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := runconfig.DefaultConfig()
	cfg.TargetFile = target
	cfg.TaskDescription = "collapse the loop into a sum expression"
	cfg.Scope = "blocks"
	cfg.Generations = 1
	cfg.PopulationSize = 1
	cfg.SelectionTopK = 1
	cfg.Metrics = []runconfig.MetricConfig{{Name: "lints"}}
	cfg.DryRun = false

	evaluators := []cascade.Evaluator{
		&cascade.LintsEvaluator{MaxAddedLines: 10, StageTimeout: time.Second},
	}

	d := New("run-1", filepath.Join(dir, "run-1"), cfg, st, oracle, evaluators)
	return d, target
}

func TestEvolveAppliesValidSearchReplaceAndRecordsEvaluations(t *testing.T) {
	oracle := &llmoracle.Fake{
		Responses: []llmoracle.Response{
			{Candidates: []string{
				"<<<<<<< SEARCH\ntotal = 0\nreturn total\n=======\nreturn sum(values)\n>>>>>>> REPLACE",
			}},
		},
	}
	d, target := newTestDriver(t, oracle)

	require.NoError(t, d.Evolve(context.Background()))

	candidates, err := d.Store.GetCandidatesByRun(d.RunID, -1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Empty(t, candidates[0].Error)
	assert.Contains(t, candidates[0].CodeSnapshot, "return sum(values)")

	evals, err := d.Store.GetCandidateEvals([]string{candidates[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1.0, evals[candidates[0].ID]["lints"])

	// Unconditional per-slot revert: the on-disk file returns to baseline
	// even though the candidate succeeded.
	onDisk, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, baselineSource, string(onDisk))
}

// An unparseable response is a no-op, leaving the file unchanged and
// producing the baseline (empty-patch) metrics.
func TestEvolveWithUnparseableResponseLeavesFileUnchanged(t *testing.T) {
	oracle := &llmoracle.Fake{
		Responses: []llmoracle.Response{
			{Candidates: []string{"not a valid response at all"}},
		},
	}
	d, target := newTestDriver(t, oracle)

	require.NoError(t, d.Evolve(context.Background()))

	candidates, err := d.Store.GetCandidatesByRun(d.RunID, -1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, baselineSource, candidates[0].CodeSnapshot)

	onDisk, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, baselineSource, string(onDisk))
}

func TestEvolveResumesFromMaxGenerationPlusOne(t *testing.T) {
	oracle := &llmoracle.Fake{
		Responses: []llmoracle.Response{
			{Candidates: []string{
				"<<<<<<< SEARCH\ntotal = 0\nreturn total\n=======\nreturn sum(values)\n>>>>>>> REPLACE",
			}},
		},
	}
	d, _ := newTestDriver(t, oracle)
	d.Config.Generations = 1
	require.NoError(t, d.Evolve(context.Background()))

	first, err := d.Store.GetCandidatesByRun(d.RunID, -1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	d.Config.Generations = 2
	require.NoError(t, d.Evolve(context.Background()))

	second, err := d.Store.GetCandidatesByRun(d.RunID, -1)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}
