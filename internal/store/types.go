// Package store is the single-process embedded relational persistence layer.
// It owns all durable state: runs, candidates, evaluations and meta-prompts.
// Every mutation is serialized through one mutex so concurrent workers may
// submit writes safely; there is no transactional grouping across a
// candidate insert and its evaluations, so readers must tolerate a candidate
// temporarily without evaluations.
package store

import "time"

// Candidate is a single proposed patch: its lineage, target, raw patch text,
// applied snapshot, and the archive-maintained novelty/age fields.
type Candidate struct {
	ID           string
	RunID        string
	ParentIDs    []string
	MetaPromptID string
	TargetFile   string
	PatchText    string
	CodeSnapshot string
	Generation   int
	Novelty      float64
	Age          int
	Error        string
	CreatedAt    time.Time
}

// Evaluation is a single (candidate, metric) measurement. Append-only.
type Evaluation struct {
	CandidateID string
	Metric      string
	Value       float64
	Passed      bool
	CostMS      int64
	Error       string
	CreatedAt   time.Time
}

// MetaPrompt is a system-prompt template whose fitness is recomputed at the
// end of each generation from the downstream evaluations of its descendants.
type MetaPrompt struct {
	ID        string
	Template  string
	ParentIDs []string
	Fitness   float64
	LastUsed  time.Time
}
