// Package archive maintains the in-memory bounded working set of candidates
// biased toward a Pareto-optimal frontier with novelty preservation. It is
// mutated only by the generation driver, once per generation, and is never
// read concurrently with Update.
package archive

import (
	"sort"
	"sync"

	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/store"
)

// MetricSpec declares one metric tracked by the archive: its name (must
// match an evaluation's Metric field) and whether lower values are better.
type MetricSpec struct {
	Name     string
	Minimize bool
}

// Entry is the in-memory projection of one candidate.
type Entry struct {
	CandidateID  string
	Metrics      map[string]float64
	CodeSnapshot string
	Generation   int
	Age          int
	Novelty      float64
	Rank         int

	order int // insertion order, for stable tie-breaking
}

// Archive is the bounded, Pareto-ranked, novelty-preserving candidate pool.
type Archive struct {
	mu       sync.RWMutex
	metrics  []MetricSpec
	capacity int
	noveltyK int

	entries     map[string]*Entry
	insertSeq   int
	insertOrder map[string]int
}

// New constructs an archive over the given metric declarations (order fixed
// for the lifetime of the archive) with the given capacity and the number
// of largest Jaccard distances averaged into each candidate's novelty.
func New(metrics []MetricSpec, capacity, noveltyK int) *Archive {
	if noveltyK < 1 {
		noveltyK = 1
	}
	return &Archive{
		metrics:     metrics,
		capacity:    capacity,
		noveltyK:    noveltyK,
		entries:     make(map[string]*Entry),
		insertOrder: make(map[string]int),
	}
}

// Len returns the current number of entries held by the archive.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Snapshot returns a defensive copy of all current entries, unordered.
func (a *Archive) Snapshot() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, *e)
	}
	return out
}

// Update recomputes rank, novelty, and age for the given candidates.
// Candidates lacking any recorded metric are dropped from consideration.
// Entries not part of this update persist unchanged.
// Afterward, if the archive exceeds capacity, it is truncated to the top
// `capacity` entries by (rank asc, novelty desc, age asc).
func (a *Archive) Update(candidates []store.Candidate, evals map[string]map[string]float64, currentGeneration int) {
	timer := obslog.StartTimer(obslog.CategoryArchive, "Update")
	defer timer.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()

	type scored struct {
		cand   store.Candidate
		vector []float64
	}

	var considered []scored
	for _, c := range candidates {
		m, ok := evals[c.ID]
		if !ok || len(m) == 0 {
			continue
		}
		vec := make([]float64, len(a.metrics))
		for i, spec := range a.metrics {
			v := m[spec.Name]
			if spec.Minimize {
				v = -v
			}
			vec[i] = v
		}
		considered = append(considered, scored{cand: c, vector: vec})
	}

	vectors := make([][]float64, len(considered))
	for i, s := range considered {
		vectors[i] = s.vector
	}
	ranks := paretoRanks(vectors)

	features := make(map[string]map[string]struct{}, len(considered))
	for _, c := range considered {
		features[c.cand.ID] = syntaxFeatures(c.cand.CodeSnapshot)
	}
	novelties := jaccardNovelty(features, a.noveltyK)

	for i, c := range considered {
		if _, seen := a.insertOrder[c.cand.ID]; !seen {
			a.insertOrder[c.cand.ID] = a.insertSeq
			a.insertSeq++
		}
		age := currentGeneration - c.cand.Generation
		if age < 0 {
			age = 0
		}
		a.entries[c.cand.ID] = &Entry{
			CandidateID:  c.cand.ID,
			Metrics:      evals[c.cand.ID],
			CodeSnapshot: c.cand.CodeSnapshot,
			Generation:   c.cand.Generation,
			Age:          age,
			Novelty:      novelties[c.cand.ID],
			Rank:         ranks[i],
			order:        a.insertOrder[c.cand.ID],
		}
	}

	a.truncateLocked()
}

func (a *Archive) truncateLocked() {
	if a.capacity <= 0 || len(a.entries) <= a.capacity {
		return
	}
	all := make([]*Entry, 0, len(a.entries))
	for _, e := range a.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Rank != all[j].Rank {
			return all[i].Rank < all[j].Rank
		}
		if all[i].Novelty != all[j].Novelty {
			return all[i].Novelty > all[j].Novelty
		}
		if all[i].Age != all[j].Age {
			return all[i].Age < all[j].Age
		}
		return all[i].order < all[j].order
	})
	keep := make(map[string]*Entry, a.capacity)
	for i := 0; i < a.capacity && i < len(all); i++ {
		keep[all[i].CandidateID] = all[i]
	}
	a.entries = keep
}

// ParetoFront returns the set of entries with minimum rank.
func (a *Archive) ParetoFront() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	minRank := -1
	for _, e := range a.entries {
		if minRank == -1 || e.Rank < minRank {
			minRank = e.Rank
		}
	}
	var out []Entry
	for _, e := range a.entries {
		if e.Rank == minRank {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// SampleMixture returns an ordered, de-duplicated list of candidate ids:
// first the nElite lowest-rank entries, then fill to nElite+nNovel from the
// highest-novelty entries, then fill to the total from the lowest-age
// entries. Ties break on insertion order.
func (a *Archive) SampleMixture(nElite, nNovel, nYoung int) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	all := make([]*Entry, 0, len(a.entries))
	for _, e := range a.entries {
		all = append(all, e)
	}

	byRank := append([]*Entry(nil), all...)
	sort.Slice(byRank, func(i, j int) bool {
		if byRank[i].Rank != byRank[j].Rank {
			return byRank[i].Rank < byRank[j].Rank
		}
		return byRank[i].order < byRank[j].order
	})

	byNovelty := append([]*Entry(nil), all...)
	sort.Slice(byNovelty, func(i, j int) bool {
		if byNovelty[i].Novelty != byNovelty[j].Novelty {
			return byNovelty[i].Novelty > byNovelty[j].Novelty
		}
		return byNovelty[i].order < byNovelty[j].order
	})

	byAge := append([]*Entry(nil), all...)
	sort.Slice(byAge, func(i, j int) bool {
		if byAge[i].Age != byAge[j].Age {
			return byAge[i].Age < byAge[j].Age
		}
		return byAge[i].order < byAge[j].order
	})

	seen := make(map[string]bool)
	var out []string
	add := func(list []*Entry, limit int) {
		for _, e := range list {
			if len(out) >= limit {
				return
			}
			if seen[e.CandidateID] {
				continue
			}
			seen[e.CandidateID] = true
			out = append(out, e.CandidateID)
		}
	}

	add(byRank, nElite)
	add(byNovelty, nElite+nNovel)
	add(byAge, nElite+nNovel+nYoung)

	return out
}
