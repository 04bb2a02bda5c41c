// Package pool implements WorkerPool: a fixed-size set of concurrent
// exploration workers with bounded concurrency, cooperative cancellation,
// and bounded retries of transient task failures.
//
// Bounded concurrency is held by a semaphore.Weighted rather than a
// buffered channel of worker goroutines, and goroutine lifecycle is tracked
// with an errgroup.Group exactly as internal/hotctx/assembler.go fans out
// concurrent work and waits on it — adapted here so a single task's
// failure (already captured in a worker.Result) never cancels its
// siblings. In-flight tasks stop only when the context they were dispatched
// with is cancelled; Shutdown itself only waits for them.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/worker"
	"github.com/MrWong99/ivrwalker/internal/observe"
)

// defaultWorkers is WORKER_COUNT's default.
const defaultWorkers = 4

// defaultTaskRetryMax is TASK_RETRY_MAX's default.
const defaultTaskRetryMax = 3

// defaultGraceShutdown is GRACE_SHUTDOWN's default.
const defaultGraceShutdown = 10 * time.Second

// retryBackoffBase is the initial delay before a retried task is
// re-enqueued; doubled per attempt and capped at retryBackoffMax.
const retryBackoffBase = 500 * time.Millisecond
const retryBackoffMax = 15 * time.Second

// Runner executes one exploration task. [*worker.Worker] implements this;
// tests substitute a stub to exercise pool scheduling without real
// providers.
type Runner interface {
	Run(ctx context.Context, task frontier.Entry) worker.Result
}

// Config sizes and bounds a Pool.
type Config struct {
	// Workers is the maximum number of concurrent in-flight tasks.
	Workers int

	// TaskRetryMax is how many times a retryable failure is re-enqueued
	// before being reported as a final failure.
	TaskRetryMax int

	// GraceShutdown bounds how long Shutdown waits for in-flight tasks to
	// unwind after their context is cancelled.
	GraceShutdown time.Duration

	// Metrics, if non-nil, records active-worker and call-attempt
	// instruments. Nil disables metrics recording.
	Metrics *observe.Metrics
}

// TaskResult is a task's final outcome: either success or a failure that
// exhausted its retries (or was non-retryable). Retried tasks are
// re-enqueued internally and never appear here until they finally settle.
type TaskResult struct {
	Task   frontier.Entry
	Result worker.Result
}

// Pool is a bounded, cancellable, retrying dispatcher of exploration tasks.
// The zero value is not usable; construct with [New].
type Pool struct {
	runner   Runner
	frontier *frontier.Frontier
	retryMax int
	grace    time.Duration
	metrics  *observe.Metrics

	sem      *semaphore.Weighted
	capacity atomic.Int64
	eg       *errgroup.Group
	results  chan TaskResult

	inFlight       atomic.Int64
	pendingRetries atomic.Int64
}

// New creates a Pool that dispatches tasks to runner, re-enqueuing
// retryable failures back onto fr up to cfg.TaskRetryMax times.
func New(runner Runner, fr *frontier.Frontier, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.TaskRetryMax <= 0 {
		cfg.TaskRetryMax = defaultTaskRetryMax
	}
	if cfg.GraceShutdown <= 0 {
		cfg.GraceShutdown = defaultGraceShutdown
	}
	p := &Pool{
		runner:   runner,
		frontier: fr,
		retryMax: cfg.TaskRetryMax,
		grace:    cfg.GraceShutdown,
		metrics:  cfg.Metrics,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		eg:       &errgroup.Group{},
		results:  make(chan TaskResult, cfg.Workers),
	}
	p.capacity.Store(int64(cfg.Workers))
	return p
}

// SetWorkers adjusts the pool's concurrency limit to n, taking effect
// immediately for new dispatches. Growing releases additional permits right
// away; shrinking reclaims permits as in-flight tasks finish rather than
// cancelling anything already running, so the reclaim happens in the
// background and is bounded by ctx.
func (p *Pool) SetWorkers(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	delta := int64(n) - p.capacity.Swap(int64(n))
	switch {
	case delta > 0:
		p.sem.Release(delta)
	case delta < 0:
		go func(need int64) {
			_ = p.sem.Acquire(ctx, need)
		}(-delta)
	}
}

// Results returns the channel of finally-settled task outcomes. The
// Explorer drains this to learn about new frontier entries and terminal
// classifications.
func (p *Pool) Results() <-chan TaskResult { return p.results }

// InFlight returns the number of tasks currently dispatched and running.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// PendingRetries returns the number of failed tasks currently waiting out
// their backoff delay before being re-enqueued. The Explorer must treat
// this as in-flight work for quiescence purposes — an empty frontier with
// zero active workers but a pending retry is not yet done.
func (p *Pool) PendingRetries() int { return int(p.pendingRetries.Load()) }

// TryDispatch attempts to claim a pool slot for task and, if successful,
// runs it in a new goroutine. Returns false without blocking if every slot
// is occupied — the Explorer is expected to retain task and try again once
// a slot frees up.
func (p *Pool) TryDispatch(ctx context.Context, task frontier.Entry) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.dispatch(ctx, task)
	return true
}

// dispatch runs task in a tracked goroutine. The goroutine always returns
// nil to the errgroup: a task's own failure is reported through results,
// never by cancelling its siblings.
func (p *Pool) dispatch(ctx context.Context, task frontier.Entry) {
	p.inFlight.Add(1)
	if p.metrics != nil {
		p.metrics.ActiveWorkers.Add(ctx, 1)
	}

	p.eg.Go(func() error {
		defer func() {
			p.sem.Release(1)
			p.inFlight.Add(-1)
			if p.metrics != nil {
				p.metrics.ActiveWorkers.Add(ctx, -1)
			}
		}()

		result := p.runner.Run(ctx, task)
		p.settle(ctx, task, result)
		return nil
	})
}

// settle reports result as final, or re-enqueues task with attempts
// incremented if it failed retryably and has budget remaining.
func (p *Pool) settle(ctx context.Context, task frontier.Entry, result worker.Result) {
	if result.Outcome == worker.OutcomeFailed && result.Retryable && task.Attempts < p.retryMax {
		retried := task
		retried.Attempts++
		delay := backoff(retried.Attempts)
		slog.Info("pool: retrying task", "node_id", task.NodeID, "attempt", retried.Attempts, "delay", delay)

		p.pendingRetries.Add(1)
		go func() {
			defer p.pendingRetries.Add(-1)
			select {
			case <-time.After(delay):
				p.frontier.Push(retried)
			case <-ctx.Done():
			}
		}()
		return
	}

	select {
	case p.results <- TaskResult{Task: task, Result: result}:
	case <-ctx.Done():
	}
}

// backoff returns a capped exponential delay with jitter for the given
// attempt count (1-indexed).
func backoff(attempt int) time.Duration {
	d := retryBackoffBase << uint(attempt-1)
	if d > retryBackoffMax || d <= 0 {
		d = retryBackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d - jitter
}

// Shutdown waits for in-flight tasks to unwind, bounded by GraceShutdown.
// The caller is responsible for cancelling the context tasks were
// dispatched with; Shutdown only waits and reports whether everything
// settled in time. Results closes only once every dispatched goroutine has
// actually returned, even if Shutdown itself times out first, so a late
// settle() can never send on a closed channel.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		err := p.eg.Wait()
		close(p.results)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(p.grace):
		slog.Warn("pool: grace period elapsed with tasks still in flight", "grace", p.grace)
		return fmt.Errorf("pool: grace period of %s elapsed with tasks still in flight", p.grace)
	}
}
