// Package explorer implements ConversationExplorer: the top-level control
// loop that seeds the frontier, keeps the worker pool fed, and decides when
// an exploration run has gone quiescent.
package explorer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/pool"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/internal/observe"
)

// defaultMaxCalls is MAX_CALLS' default.
const defaultMaxCalls = 100

// defaultMaxWallTime is MAX_WALL_TIME_S' default.
const defaultMaxWallTime = time.Hour

// dispatchTick bounds how long the loop can go without re-checking
// quiescence when no pool result arrives (e.g. while every worker is still
// mid-call but a wall-time or plateau limit has since been crossed).
const dispatchTick = 250 * time.Millisecond

// Config bounds one exploration run.
type Config struct {
	// MaxCalls is the total call-attempt budget across the run.
	MaxCalls int

	// MaxWallTime bounds the run's total duration.
	MaxWallTime time.Duration

	// RandomSeed is only recorded by the Explorer for reproducibility
	// logging. The caller that builds worker Dependencies forwards the same
	// seed to the LLM as llm.CompletionOptions.Seed; frontier tie-breaking
	// is FIFO insertion order and does not use the seed.
	RandomSeed int64

	// Metrics, if non-nil, records frontier-size and terminal-reached
	// instruments.
	Metrics *observe.Metrics
}

// Summary reports how a run ended.
type Summary struct {
	Reason string // "frontier_exhausted" | "max_calls" | "max_wall_time" | "plateau" | "pool_closed" | "cancelled"
	Stats  stats.Snapshot
	Graph  graph.Snapshot
}

// Explorer drives a bounded exploration run to quiescence.
type Explorer struct {
	frontier *frontier.Frontier
	pool     *pool.Pool
	graph    *graph.Graph
	stats    *stats.Tracker
	metrics  *observe.Metrics

	// maxCalls and maxWallTime are read on every scheduling tick and may be
	// updated live by a config reload, so both are stored as atomics rather
	// than plain fields.
	maxCalls    atomic.Int64
	maxWallTime atomic.Int64 // time.Duration nanoseconds
	seed        int64
}

// New creates an Explorer. fr and pl must be wired to the same
// Dependencies' frontier/graph/stats the dispatched workers use.
func New(fr *frontier.Frontier, pl *pool.Pool, g *graph.Graph, st *stats.Tracker, cfg Config) *Explorer {
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = defaultMaxCalls
	}
	if cfg.MaxWallTime <= 0 {
		cfg.MaxWallTime = defaultMaxWallTime
	}
	e := &Explorer{
		frontier: fr,
		pool:     pl,
		graph:    g,
		stats:    st,
		metrics:  cfg.Metrics,
		seed:     cfg.RandomSeed,
	}
	e.maxCalls.Store(int64(cfg.MaxCalls))
	e.maxWallTime.Store(int64(cfg.MaxWallTime))
	return e
}

// MaxCalls returns the currently active call-attempt budget.
func (e *Explorer) MaxCalls() int { return int(e.maxCalls.Load()) }

// SetMaxCalls updates the run's total call-attempt budget. Safe to call
// from a config reload while Run is active; takes effect on the next
// scheduling tick.
func (e *Explorer) SetMaxCalls(n int) {
	if n > 0 {
		e.maxCalls.Store(int64(n))
	}
}

// SetMaxWallTime updates the run's wall-clock budget. Safe to call from a
// config reload while Run is active; takes effect on the next scheduling
// tick.
func (e *Explorer) SetMaxWallTime(d time.Duration) {
	if d > 0 {
		e.maxWallTime.Store(int64(d))
	}
}

// Run seeds the frontier (if the graph has no root yet) and drives
// dispatch/collection until quiescent or ctx is cancelled. It returns once
// the pool has drained every in-flight and pending-retry task.
func (e *Explorer) Run(ctx context.Context) Summary {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, hasRoot := e.graph.Root(); !hasRoot && e.frontier.Len() == 0 {
		slog.Info("explorer: seeding frontier with cold-start entry", "random_seed", e.seed)
		e.frontier.Push(frontier.Entry{})
	}

	start := time.Now()
	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()

	reason := ""
loop:
	for {
		e.fillSlots(runCtx)

		if r, done := e.quiescent(start); done {
			reason = r
			break loop
		}

		select {
		case res, ok := <-e.pool.Results():
			if !ok {
				reason = "pool_closed"
				break loop
			}
			e.handleResult(res)
		case <-ticker.C:
		case <-ctx.Done():
			reason = "cancelled"
			break loop
		}
	}

	slog.Info("explorer: quiescent, draining pool", "reason", reason)
	cancel()
	if err := e.pool.Shutdown(context.Background()); err != nil {
		slog.Warn("explorer: pool shutdown did not complete cleanly", "err", err)
	}

	return Summary{Reason: reason, Stats: e.stats.Snapshot(), Graph: e.graph.Snapshot()}
}

// fillSlots dispatches frontier entries to the pool until the frontier
// empties, the pool reports no free slot, or the remaining call budget is
// exhausted.
func (e *Explorer) fillSlots(ctx context.Context) {
	for {
		remaining := int(e.maxCalls.Load()) - (e.stats.Snapshot().CallsAttempted + e.pool.InFlight())
		if remaining <= 0 {
			return
		}
		entry, ok := e.frontier.Pop()
		if !ok {
			return
		}
		if !e.pool.TryDispatch(ctx, entry) {
			e.frontier.Push(entry)
			return
		}
	}
}

// handleResult folds a settled task's outcome back into the frontier.
func (e *Explorer) handleResult(res pool.TaskResult) {
	for _, entry := range res.Result.NewEntries {
		e.frontier.Push(entry)
	}
	if e.metrics != nil {
		e.metrics.FrontierSize.Add(context.Background(), int64(len(res.Result.NewEntries)))
	}
}

// quiescent reports whether the run should stop, and why.
func (e *Explorer) quiescent(start time.Time) (reason string, done bool) {
	snap := e.stats.Snapshot()

	if snap.CallsAttempted >= int(e.maxCalls.Load()) {
		return "max_calls", true
	}
	if time.Since(start) >= time.Duration(e.maxWallTime.Load()) {
		return "max_wall_time", true
	}
	if e.stats.PlateauReached() {
		return "plateau", true
	}
	if e.frontier.Len() == 0 && e.pool.InFlight() == 0 && e.pool.PendingRetries() == 0 {
		return "frontier_exhausted", true
	}
	return "", false
}
