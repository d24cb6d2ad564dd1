// Package cascade runs an ordered set of heterogeneous evaluators against a
// candidate with bounded parallelism, per-stage timeouts, and optional
// fail-fast cancellation.
package cascade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mmprotest/openevolve/internal/obslog"
	"github.com/mmprotest/openevolve/internal/store"
)

// Result is the outcome of a single evaluator stage.
type Result struct {
	Value  float64
	Passed bool
	CostMS int64
	Error  string
}

// Evaluator is a pure function from (workdir, candidate) to a Result, with a
// name used as the map key in the cascade's output and a per-stage timeout.
type Evaluator interface {
	Name() string
	Timeout() time.Duration
	Evaluate(ctx context.Context, workdir string, candidate store.Candidate) (Result, error)
}

// Cascade runs evaluators with bounded concurrency.
type Cascade struct {
	MaxParallel  int
	CancelOnFail bool
}

// New constructs a Cascade with the given bounded parallelism and
// cancel-on-fail policy.
func New(maxParallel int, cancelOnFail bool) *Cascade {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Cascade{MaxParallel: maxParallel, CancelOnFail: cancelOnFail}
}

// Run dispatches evaluators in ascending order of per-stage timeout so cheap
// checks surface early, bounded by MaxParallel concurrent stages. Returns one
// entry per completed stage; a stage cut short by cancel-on-fail is omitted
// entirely from the result.
func (c *Cascade) Run(ctx context.Context, evaluators []Evaluator, workdir string, candidate store.Candidate) map[string]Result {
	timer := obslog.StartTimer(obslog.CategoryCascade, "Run")
	defer timer.Stop()

	ordered := append([]Evaluator(nil), evaluators...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timeout() < ordered[j].Timeout()
	})

	cascadeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(c.MaxParallel))

	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(ordered))
		wg  sync.WaitGroup
	)

	for _, ev := range ordered {
		ev := ev
		if err := sem.Acquire(ctx, 1); err != nil {
			// Overall context already done before this stage could even
			// start; nothing to record for it.
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			res, ok := runStage(cascadeCtx, ev, workdir, candidate)
			if !ok {
				obslog.Get(obslog.CategoryCascade).Debug("stage %s omitted (cancelled)", ev.Name())
				return
			}

			mu.Lock()
			out[ev.Name()] = res
			mu.Unlock()

			if c.CancelOnFail && !res.Passed {
				cancel()
			}
		}()
	}

	wg.Wait()
	return out
}

// runStage runs one evaluator under its own timeout, isolating panics and
// raised errors into a failed Result. ok is false iff the stage was cut
// short by cascade-level cancellation (cancel-on-fail from a sibling) rather
// than its own timeout, in which case the caller must omit it entirely.
func runStage(parent context.Context, ev Evaluator, workdir string, candidate store.Candidate) (Result, bool) {
	stageCtx, stageCancel := context.WithTimeout(parent, ev.Timeout())
	defer stageCancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Passed: false, Error: fmt.Sprintf("panic: %v", r)}
			}
		}()
		start := time.Now()
		res, err := ev.Evaluate(stageCtx, workdir, candidate)
		if err != nil {
			done <- Result{Passed: false, Error: err.Error(), CostMS: time.Since(start).Milliseconds()}
			return
		}
		done <- res
	}()

	select {
	case <-stageCtx.Done():
		if stageCtx.Err() == context.DeadlineExceeded {
			return Result{
				Value:  0,
				Passed: false,
				CostMS: ev.Timeout().Milliseconds(),
				Error:  "timeout",
			}, true
		}
		// Cancelled by a sibling's failure under cancel-on-fail.
		return Result{}, false
	case res := <-done:
		return res, true
	}
}
