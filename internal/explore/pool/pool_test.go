package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/pool"
	"github.com/MrWong99/ivrwalker/internal/explore/worker"
)

// stubRunner runs fn for every dispatched task and counts concurrent
// invocations so tests can assert the concurrency bound is honored.
type stubRunner struct {
	mu        sync.Mutex
	active    int
	maxActive int

	fn func(task frontier.Entry) worker.Result
}

func (s *stubRunner) Run(ctx context.Context, task frontier.Entry) worker.Result {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	result := s.fn(task)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return result
}

func alwaysSucceeds(task frontier.Entry) worker.Result {
	return worker.Result{Outcome: worker.OutcomeSucceeded}
}

func TestTryDispatch_RespectsConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		<-release
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 2})
	ctx := context.Background()

	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "a"}) {
		t.Fatal("expected first dispatch to succeed")
	}
	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "b"}) {
		t.Fatal("expected second dispatch to succeed")
	}
	if p.TryDispatch(ctx, frontier.Entry{NodeID: "c"}) {
		t.Fatal("expected third dispatch to be rejected at the concurrency bound")
	}

	close(release)
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxActive > 2 {
		t.Errorf("maxActive = %d, want <= 2", runner.maxActive)
	}
}

func TestSetWorkers_GrowsCapacityImmediately(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		<-release
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1})
	ctx := context.Background()

	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "a"}) {
		t.Fatal("expected first dispatch to succeed")
	}
	if p.TryDispatch(ctx, frontier.Entry{NodeID: "b"}) {
		t.Fatal("expected second dispatch to be rejected before growing capacity")
	}

	p.SetWorkers(ctx, 2)
	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "b"}) {
		t.Fatal("expected dispatch to succeed once capacity grew to 2")
	}

	close(release)
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetWorkers_ShrinksCapacityAsTasksFinish(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		<-release
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 2})
	ctx := context.Background()

	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "a"}) {
		t.Fatal("expected first dispatch to succeed")
	}
	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "b"}) {
		t.Fatal("expected second dispatch to succeed")
	}

	p.SetWorkers(ctx, 1)
	close(release)
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Draining both in-flight tasks and reclaiming one permit for the
	// shrink must not deadlock Shutdown.
}

func TestTryDispatch_SuccessReportedOnResults(t *testing.T) {
	runner := &stubRunner{fn: alwaysSucceeds}
	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1})
	ctx := context.Background()

	if !p.TryDispatch(ctx, frontier.Entry{NodeID: "a"}) {
		t.Fatal("expected dispatch to succeed")
	}

	select {
	case r := <-p.Results():
		if r.Result.Outcome != worker.OutcomeSucceeded {
			t.Errorf("Outcome = %v, want succeeded", r.Result.Outcome)
		}
		if r.Task.NodeID != "a" {
			t.Errorf("Task.NodeID = %q, want a", r.Task.NodeID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTryDispatch_RetryableFailureReenqueuesOnFrontier(t *testing.T) {
	var calls atomic.Int32
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		n := calls.Add(1)
		if n == 1 {
			return worker.Result{Outcome: worker.OutcomeFailed, Retryable: true}
		}
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}

	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1, TaskRetryMax: 3})
	ctx := context.Background()

	p.TryDispatch(ctx, frontier.Entry{NodeID: "a"})

	deadline := time.After(5 * time.Second)
	for {
		if e, ok := fr.Pop(); ok {
			if e.Attempts != 1 {
				t.Fatalf("retried entry Attempts = %d, want 1", e.Attempts)
			}
			if e.NodeID != "a" {
				t.Fatalf("retried entry NodeID = %q, want a", e.NodeID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task to be re-enqueued")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTryDispatch_NonRetryableFailureGoesToResultsNotFrontier(t *testing.T) {
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		return worker.Result{Outcome: worker.OutcomeFailed, Retryable: false}
	}}
	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1})
	ctx := context.Background()

	p.TryDispatch(ctx, frontier.Entry{NodeID: "a"})

	select {
	case r := <-p.Results():
		if r.Result.Outcome != worker.OutcomeFailed {
			t.Errorf("Outcome = %v, want failed", r.Result.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	if fr.Len() != 0 {
		t.Errorf("frontier.Len() = %d, want 0 (non-retryable failures must not be re-enqueued)", fr.Len())
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTryDispatch_ExhaustedRetriesGoToResults(t *testing.T) {
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		return worker.Result{Outcome: worker.OutcomeFailed, Retryable: true}
	}}
	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1, TaskRetryMax: 1})
	ctx := context.Background()

	// Already at the retry cap: this failure must be reported final, not
	// re-enqueued again.
	p.TryDispatch(ctx, frontier.Entry{NodeID: "a", Attempts: 1})

	select {
	case r := <-p.Results():
		if r.Result.Outcome != worker.OutcomeFailed {
			t.Errorf("Outcome = %v, want failed", r.Result.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for final result")
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInFlight_TracksActiveDispatches(t *testing.T) {
	release := make(chan struct{})
	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		<-release
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}
	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 2})
	ctx := context.Background()

	p.TryDispatch(ctx, frontier.Entry{NodeID: "a"})
	p.TryDispatch(ctx, frontier.Entry{NodeID: "b"})

	deadline := time.Now().Add(time.Second)
	for p.InFlight() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := p.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d, want 2", got)
	}

	close(release)
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdown_TimesOutWithTasksStillRunning(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	runner := &stubRunner{fn: func(frontier.Entry) worker.Result {
		<-block
		return worker.Result{Outcome: worker.OutcomeSucceeded}
	}}
	fr := frontier.New()
	p := pool.New(runner, fr, pool.Config{Workers: 1, GraceShutdown: 30 * time.Millisecond})
	ctx := context.Background()

	p.TryDispatch(ctx, frontier.Entry{NodeID: "a"})

	if err := p.Shutdown(ctx); err == nil {
		t.Fatal("expected Shutdown to report a timeout while a task is still blocked")
	}
}
