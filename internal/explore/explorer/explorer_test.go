package explorer_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/ivrwalker/internal/explore/explorer"
	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/pool"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/internal/explore/worker"
)

// scriptedRunner answers each dispatched task by calling fn, which may
// mutate g/st itself the way a real Worker would.
type scriptedRunner struct {
	fn func(task frontier.Entry) worker.Result
}

func (r *scriptedRunner) Run(ctx context.Context, task frontier.Entry) worker.Result {
	return r.fn(task)
}

func TestRun_ExhaustsFrontierThenStops(t *testing.T) {
	g := graph.New()
	st := stats.New()
	fr := frontier.New()

	root, _ := g.GetOrCreateNode("welcome, press 1 or 2", 0)
	var calls atomic.Int32

	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		calls.Add(1)
		st.RecordCallAttempt()
		st.RecordCallSuccess()
		if task.NodeID == "" {
			// Seed call: establishes root, proposes two candidates.
			st.RecordGraphGrowth(1, 0)
			return worker.Result{Outcome: worker.OutcomeSucceeded, NewEntries: []frontier.Entry{
				{NodeID: root, CandidateResponse: "1", Depth: 1},
				{NodeID: root, CandidateResponse: "2", Depth: 1},
			}}
		}
		// Every other candidate terminates without further expansion.
		st.RecordGraphGrowth(0, 1)
		st.RecordTerminal()
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 2})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 50, MaxWallTime: 5 * time.Second})

	summary := exp.Run(context.Background())

	if summary.Reason != "frontier_exhausted" {
		t.Fatalf("Reason = %q, want frontier_exhausted", summary.Reason)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3 (seed + 2 candidates)", calls.Load())
	}
	if summary.Stats.CallsSucceeded != 3 {
		t.Errorf("CallsSucceeded = %d, want 3", summary.Stats.CallsSucceeded)
	}
}

func TestRun_StopsAtMaxCalls(t *testing.T) {
	g := graph.New()
	st := stats.New()
	fr := frontier.New()

	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		st.RecordCallAttempt()
		st.RecordCallSuccess()
		st.RecordGraphGrowth(0, 1)
		// Always propose one more candidate so the frontier never empties
		// on its own; only MAX_CALLS should end the run.
		return worker.Result{Outcome: worker.OutcomeSucceeded, NewEntries: []frontier.Entry{
			{NodeID: "n", CandidateResponse: task.CandidateResponse + "x", Depth: task.Depth + 1},
		}}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 1})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 5, MaxWallTime: 10 * time.Second})

	summary := exp.Run(context.Background())

	if summary.Reason != "max_calls" {
		t.Fatalf("Reason = %q, want max_calls", summary.Reason)
	}
	if summary.Stats.CallsAttempted < 5 {
		t.Errorf("CallsAttempted = %d, want >= 5", summary.Stats.CallsAttempted)
	}
}

func TestRun_FillSlotsDoesNotOverdispatchPastMaxCalls(t *testing.T) {
	g := graph.New()
	st := stats.New()
	fr := frontier.New()

	// Each task returns instantly and always proposes another candidate, so
	// the frontier never empties on its own; a generous worker count means
	// fillSlots could, without a budget gate, dispatch every free slot in
	// one pass and overshoot MaxCalls before quiescent() ever runs.
	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		st.RecordCallAttempt()
		st.RecordCallSuccess()
		return worker.Result{Outcome: worker.OutcomeSucceeded, NewEntries: []frontier.Entry{
			{NodeID: "n", CandidateResponse: task.CandidateResponse + "x", Depth: task.Depth + 1},
		}}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 8})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 3, MaxWallTime: 10 * time.Second})

	summary := exp.Run(context.Background())

	if summary.Reason != "max_calls" {
		t.Fatalf("Reason = %q, want max_calls", summary.Reason)
	}
	if summary.Stats.CallsAttempted != 3 {
		t.Errorf("CallsAttempted = %d, want exactly 3 (budget gate should prevent overshoot)", summary.Stats.CallsAttempted)
	}
}

func TestSetMaxCalls_AppliesLiveWhileRunning(t *testing.T) {
	g := graph.New()
	st := stats.New()
	fr := frontier.New()

	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		st.RecordCallAttempt()
		st.RecordCallSuccess()
		return worker.Result{Outcome: worker.OutcomeSucceeded, NewEntries: []frontier.Entry{
			{NodeID: "n", CandidateResponse: task.CandidateResponse + "x", Depth: task.Depth + 1},
		}}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 1})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 1000, MaxWallTime: 10 * time.Second})
	exp.SetMaxCalls(2)

	summary := exp.Run(context.Background())

	if summary.Reason != "max_calls" {
		t.Fatalf("Reason = %q, want max_calls", summary.Reason)
	}
	if summary.Stats.CallsAttempted != 2 {
		t.Errorf("CallsAttempted = %d, want 2 (the reduced live budget)", summary.Stats.CallsAttempted)
	}
}

func TestRun_StopsOnPlateau(t *testing.T) {
	g := graph.New()
	st := stats.New(stats.WithPlateauWindow(3))
	fr := frontier.New()

	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		st.RecordCallAttempt()
		st.RecordCallSuccess()
		st.RecordGraphGrowth(0, 0) // no growth, ever
		return worker.Result{Outcome: worker.OutcomeSucceeded, NewEntries: []frontier.Entry{
			{NodeID: "n", CandidateResponse: "again", Depth: task.Depth + 1},
		}}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 1})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 1000, MaxWallTime: 30 * time.Second})

	summary := exp.Run(context.Background())

	if summary.Reason != "plateau" {
		t.Fatalf("Reason = %q, want plateau", summary.Reason)
	}
}

func TestRun_CancelledContextStopsRun(t *testing.T) {
	g := graph.New()
	st := stats.New()
	fr := frontier.New()

	block := make(chan struct{})
	runner := &scriptedRunner{fn: func(task frontier.Entry) worker.Result {
		st.RecordCallAttempt()
		<-block
		st.RecordCallSuccess()
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	pl := pool.New(runner, fr, pool.Config{Workers: 1, GraceShutdown: 200 * time.Millisecond})
	exp := explorer.New(fr, pl, g, st, explorer.Config{MaxCalls: 1000, MaxWallTime: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
		close(block)
	}()

	summary := exp.Run(ctx)
	if summary.Reason != "cancelled" {
		t.Fatalf("Reason = %q, want cancelled", summary.Reason)
	}
}
