package cascade

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mmprotest/openevolve/internal/store"
)

// TestsEvaluator invokes an external test runner in the candidate's workdir.
// It passes iff the runner exits zero; cost is wall time.
type TestsEvaluator struct {
	Command      []string
	StageTimeout time.Duration
}

func (e *TestsEvaluator) Name() string           { return "tests" }
func (e *TestsEvaluator) Timeout() time.Duration { return e.StageTimeout }

func (e *TestsEvaluator) Evaluate(ctx context.Context, workdir string, _ store.Candidate) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = workdir
	err := cmd.Run()
	cost := time.Since(start).Milliseconds()

	if err != nil {
		return Result{Value: 0, Passed: false, CostMS: cost, Error: err.Error()}, nil
	}
	return Result{Value: 1, Passed: true, CostMS: cost}, nil
}

// lintOp mirrors the structured patch's op shape (internal/patch.Op) just
// enough to recover each operation's search/replace text for diffing.
type lintOp struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// LintsEvaluator line-diffs each operation's search/replace text with
// go-diff and counts inserted lines, passing iff that count is within
// MaxAddedLines. A candidate whose patch text cannot be decoded as the
// structured op list (e.g. a unified-diff-scoped run) falls back to
// counting literal '+'-prefixed lines.
type LintsEvaluator struct {
	MaxAddedLines int
	StageTimeout  time.Duration
}

func (e *LintsEvaluator) Name() string           { return "lints" }
func (e *LintsEvaluator) Timeout() time.Duration { return e.StageTimeout }

func (e *LintsEvaluator) Evaluate(_ context.Context, _ string, candidate store.Candidate) (Result, error) {
	added := 0
	var ops []lintOp
	if err := json.Unmarshal([]byte(candidate.PatchText), &ops); err == nil && len(ops) > 0 {
		dmp := diffmatchpatch.New()
		for _, op := range ops {
			a, b, lines := dmp.DiffLinesToChars(op.Search, op.Replace)
			diffs := dmp.DiffMain(a, b, false)
			diffs = dmp.DiffCharsToLines(diffs, lines)
			for _, d := range diffs {
				if d.Type == diffmatchpatch.DiffInsert {
					added += strings.Count(d.Text, "\n")
					if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
						added++
					}
				}
			}
		}
	} else {
		for _, line := range strings.Split(candidate.PatchText, "\n") {
			if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
				added++
			}
		}
	}
	return Result{
		Value:  float64(added),
		Passed: added <= e.MaxAddedLines,
		CostMS: 0,
	}, nil
}

// PerformanceEvaluator invokes a target script and passes iff wall time is
// within Budget.
type PerformanceEvaluator struct {
	Command      []string
	Budget       time.Duration
	StageTimeout time.Duration
}

func (e *PerformanceEvaluator) Name() string           { return "performance" }
func (e *PerformanceEvaluator) Timeout() time.Duration { return e.StageTimeout }

func (e *PerformanceEvaluator) Evaluate(ctx context.Context, workdir string, _ store.Candidate) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = workdir
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		return Result{Value: float64(elapsed.Milliseconds()), Passed: false, CostMS: elapsed.Milliseconds(), Error: err.Error()}, nil
	}
	return Result{
		Value:  float64(elapsed.Milliseconds()),
		Passed: elapsed <= e.Budget,
		CostMS: elapsed.Milliseconds(),
	}, nil
}
