package cascade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mmprotest/openevolve/internal/store"
)

type fakeEvaluator struct {
	name    string
	timeout time.Duration
	sleep   time.Duration
	passed  bool
	err     error
}

func (f *fakeEvaluator) Name() string           { return f.name }
func (f *fakeEvaluator) Timeout() time.Duration { return f.timeout }

func (f *fakeEvaluator) Evaluate(ctx context.Context, _ string, _ store.Candidate) (Result, error) {
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Value: 1, Passed: f.passed}, nil
}

func TestCascadeRecordsTimeoutForSlowStage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	slow := &fakeEvaluator{name: "slow", timeout: 200 * time.Millisecond, sleep: 2 * time.Second, passed: true}
	fast := &fakeEvaluator{name: "fast", timeout: time.Second, passed: true}

	c := New(2, false)
	out := c.Run(context.Background(), []Evaluator{slow, fast}, t.TempDir(), store.Candidate{})

	require.Contains(t, out, "slow")
	require.Contains(t, out, "fast")
	assert.False(t, out["slow"].Passed)
	assert.Equal(t, "timeout", out["slow"].Error)
	assert.InDelta(t, 200, out["slow"].CostMS, 5)
	assert.True(t, out["fast"].Passed)
}

func TestCascadeCancelOnFailOmitsSiblings(t *testing.T) {
	fail := &fakeEvaluator{name: "fail", timeout: time.Second, passed: false}
	slow := &fakeEvaluator{name: "slow", timeout: 5 * time.Second, sleep: 3 * time.Second, passed: true}

	c := New(2, true)
	out := c.Run(context.Background(), []Evaluator{fail, slow}, t.TempDir(), store.Candidate{})

	assert.Contains(t, out, "fail")
	assert.LessOrEqual(t, len(out), 2)
}

func TestCascadeWithoutCancelOnFailRunsAllToCompletion(t *testing.T) {
	fail := &fakeEvaluator{name: "fail", timeout: time.Second, passed: false}
	ok := &fakeEvaluator{name: "ok", timeout: time.Second, passed: true}

	c := New(2, false)
	out := c.Run(context.Background(), []Evaluator{fail, ok}, t.TempDir(), store.Candidate{})

	assert.Len(t, out, 2)
}

func TestCascadeRecoversFromPanickingEvaluator(t *testing.T) {
	panicky := &panicEvaluator{name: "boom", timeout: time.Second}

	c := New(1, false)
	out := c.Run(context.Background(), []Evaluator{panicky}, t.TempDir(), store.Candidate{})

	require.Contains(t, out, "boom")
	assert.False(t, out["boom"].Passed)
	assert.Contains(t, out["boom"].Error, "panic")
}

type panicEvaluator struct {
	name    string
	timeout time.Duration
}

func (p *panicEvaluator) Name() string           { return p.name }
func (p *panicEvaluator) Timeout() time.Duration { return p.timeout }
func (p *panicEvaluator) Evaluate(context.Context, string, store.Candidate) (Result, error) {
	panic("evaluator exploded")
}

func TestCascadeStageCountNeverExceedsEvaluatorCount(t *testing.T) {
	a := &fakeEvaluator{name: "a", timeout: time.Second, passed: true}
	b := &fakeEvaluator{name: "b", timeout: time.Second, passed: true}

	c := New(4, false)
	out := c.Run(context.Background(), []Evaluator{a, b}, t.TempDir(), store.Candidate{})
	assert.LessOrEqual(t, len(out), 2)
	assert.Len(t, out, 2)
}
