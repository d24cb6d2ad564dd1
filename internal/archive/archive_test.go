package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmprotest/openevolve/internal/store"
)

func metricSpecs() []MetricSpec {
	return []MetricSpec{
		{Name: "acc", Minimize: false},
		{Name: "time", Minimize: true},
	}
}

func TestParetoRankingMixedMaximizeMinimize(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "a", Generation: 0, CodeSnapshot: "def a():\n    return 1\n"},
		{ID: "b", Generation: 0, CodeSnapshot: "def b():\n    return 2\n"},
		{ID: "c", Generation: 0, CodeSnapshot: "def c():\n    return 3\n"},
	}
	evals := map[string]map[string]float64{
		"a": {"acc": 0.8, "time": 100},
		"b": {"acc": 0.9, "time": 120},
		"c": {"acc": 0.85, "time": 90},
	}

	a := New(metricSpecs(), 100, 2)
	a.Update(candidates, evals, 0)

	snap := a.Snapshot()
	byID := make(map[string]Entry, len(snap))
	for _, e := range snap {
		byID[e.CandidateID] = e
	}

	require.Contains(t, byID, "c")
	assert.Equal(t, 0, byID["c"].Rank)

	mixture := a.SampleMixture(1, 1, 1)
	assert.Contains(t, mixture, "c")
}

func TestParetoFrontOnlyContainsRankZero(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "a", Generation: 0, CodeSnapshot: "x=1"},
		{ID: "b", Generation: 0, CodeSnapshot: "y=2"},
		{ID: "c", Generation: 0, CodeSnapshot: "z=3"},
	}
	evals := map[string]map[string]float64{
		"a": {"acc": 0.8, "time": 100},
		"b": {"acc": 0.9, "time": 120},
		"c": {"acc": 0.85, "time": 90},
	}

	a := New(metricSpecs(), 100, 2)
	a.Update(candidates, evals, 0)

	front := a.ParetoFront()
	for _, e := range front {
		assert.Equal(t, 0, e.Rank)
	}

	snap := a.Snapshot()
	minRank := snap[0].Rank
	for _, e := range snap {
		if e.Rank < minRank {
			minRank = e.Rank
		}
	}
	for _, e := range snap {
		if e.Rank == 0 {
			found := false
			for _, f := range front {
				if f.CandidateID == e.CandidateID {
					found = true
				}
			}
			assert.True(t, found, "rank-0 candidate %s missing from ParetoFront", e.CandidateID)
		}
	}
}

func TestNoveltyIsOneForSoleCandidate(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "solo", Generation: 0, CodeSnapshot: "def f():\n    return 1\n"},
	}
	evals := map[string]map[string]float64{
		"solo": {"acc": 1.0, "time": 1},
	}

	a := New(metricSpecs(), 100, 2)
	a.Update(candidates, evals, 0)

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1.0, snap[0].Novelty)
}

func TestNoveltyInRangeWithMultipleCandidates(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "a", Generation: 0, CodeSnapshot: "def f():\n    return 1\n"},
		{ID: "b", Generation: 0, CodeSnapshot: "def f():\n    return 2\n"},
		{ID: "c", Generation: 0, CodeSnapshot: "class C:\n    def g(self):\n        pass\n"},
	}
	evals := map[string]map[string]float64{
		"a": {"acc": 0.5, "time": 1},
		"b": {"acc": 0.6, "time": 1},
		"c": {"acc": 0.7, "time": 1},
	}

	a := New(metricSpecs(), 100, 2)
	a.Update(candidates, evals, 0)

	for _, e := range a.Snapshot() {
		assert.GreaterOrEqual(t, e.Novelty, 0.0)
		assert.LessOrEqual(t, e.Novelty, 1.0)
	}
}

func TestArchiveSizeBoundedByCapacityAfterUpdate(t *testing.T) {
	metrics := metricSpecs()
	a := New(metrics, 2, 2)

	var candidates []store.Candidate
	evals := map[string]map[string]float64{}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		candidates = append(candidates, store.Candidate{ID: id, Generation: 0, CodeSnapshot: "x=" + id})
		evals[id] = map[string]float64{"acc": float64(i), "time": float64(i)}
	}

	a.Update(candidates, evals, 0)
	assert.LessOrEqual(t, a.Len(), 2)
}

func TestUpdateSkipsCandidatesWithoutMetrics(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "no-metrics", Generation: 0, CodeSnapshot: "x=1"},
	}
	a := New(metricSpecs(), 10, 2)
	a.Update(candidates, map[string]map[string]float64{}, 0)
	assert.Equal(t, 0, a.Len())
}

func TestAgeIsNonNegative(t *testing.T) {
	candidates := []store.Candidate{
		{ID: "old", Generation: 5, CodeSnapshot: "x=1"},
	}
	evals := map[string]map[string]float64{"old": {"acc": 1, "time": 1}}

	a := New(metricSpecs(), 10, 2)
	a.Update(candidates, evals, 2) // current generation before candidate's own generation
	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.GreaterOrEqual(t, snap[0].Age, 0)
}
