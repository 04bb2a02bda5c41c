// Package app wires the exploration engine's subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem, Run drives one exploration pass to completion, and Shutdown
// tears everything down in order.
//
// For testing, inject test doubles via functional options (WithVoice,
// WithTranscriber, WithLLM, etc.). When an option is not provided, New
// builds real implementations from the config's provider registry.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/ivrwalker/internal/config"
	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/internal/explore/explorer"
	"github.com/MrWong99/ivrwalker/internal/explore/frontier"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/pool"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/internal/explore/worker"
	"github.com/MrWong99/ivrwalker/internal/health"
	"github.com/MrWong99/ivrwalker/internal/httpapi"
	"github.com/MrWong99/ivrwalker/internal/observe"
	"github.com/MrWong99/ivrwalker/internal/resilience"
	"github.com/MrWong99/ivrwalker/pkg/provider/llm"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
	"golang.org/x/sync/singleflight"
)

// App owns all subsystem lifetimes and orchestrates one exploration run.
type App struct {
	cfgMu sync.Mutex
	cfg   *config.Config

	configPath        string
	configWatcherOpts []config.WatcherOption
	configWatcher     *config.Watcher
	levelVar          *slog.LevelVar

	graph      *graph.Graph
	frontier   *frontier.Frontier
	stats      *stats.Tracker
	correlator *correlator.Correlator
	metrics    *observe.Metrics

	voiceProvider       voice.Provider
	transcriberProvider transcriber.Provider
	llmProvider         llm.Provider

	pool     *pool.Pool
	explorer *explorer.Explorer
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVoice injects a voice provider instead of building one from the
// config's provider registry.
func WithVoice(p voice.Provider) Option {
	return func(a *App) { a.voiceProvider = p }
}

// WithTranscriber injects a transcriber provider instead of building one
// from the config's provider registry.
func WithTranscriber(p transcriber.Provider) Option {
	return func(a *App) { a.transcriberProvider = p }
}

// WithLLM injects an LLM provider instead of building one from the config's
// provider registry.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llmProvider = p }
}

// WithMetrics injects a metrics recorder instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch enables polling configPath for changes and hot-applying
// the safe-to-reload subset of Run/Server settings (log level, worker
// count, similarity threshold, max calls, max wall time, plateau window) to
// the already-running explorer, pool, graph, and stats tracker. Provider
// selection and the target phone number are never hot-applied; changing
// those requires a restart.
func WithConfigWatch(configPath string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.configPath = configPath
		a.configWatcherOpts = opts
	}
}

// WithLevelVar lets the caller's slog handler level track hot-reloaded log
// level changes. Without this, a reloaded log level is recorded but has no
// effect on the running logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// New creates an App by wiring every subsystem together: the conversation
// graph, frontier, progress tracker, webhook correlator, provider registry
// (resilience-wrapped per configured fallback), worker pool, explorer, and
// HTTP server. Use Option functions to inject test doubles for any provider.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.graph = graph.New(graph.WithSimilarityThreshold(cfg.Run.SimilarityThreshold))
	a.frontier = frontier.New()
	a.stats = stats.New(stats.WithPlateauWindow(cfg.Run.PlateauWindow))
	a.correlator = correlator.New()

	if err := a.initProviders(registry); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	a.initPool()
	a.initExplorer()
	a.initServer()
	a.initLateEventPruning()

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChanged, a.configWatcherOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: config watcher: %w", err)
		}
		a.configWatcher = w
		a.closers = append(a.closers, func() error { a.configWatcher.Stop(); return nil })
	}

	return a, nil
}

// onConfigChanged applies the hot-reloadable subset of a changed config file
// to the already-running subsystems. Provider selection and the target
// phone number are deliberately excluded by [config.Diff] and require a
// restart.
func (a *App) onConfigChanged(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Changed() {
		return
	}

	a.cfgMu.Lock()
	a.cfg = new
	a.cfgMu.Unlock()

	if diff.LogLevelChanged {
		if a.levelVar != nil {
			a.levelVar.Set(parseLogLevel(diff.NewLogLevel))
		}
		slog.Info("app: config reload applied log level", "level", diff.NewLogLevel)
	}
	if diff.SimilarityThresholdChanged {
		a.graph.SetSimilarityThreshold(diff.NewSimilarityThreshold)
		slog.Info("app: config reload applied similarity threshold", "threshold", diff.NewSimilarityThreshold)
	}
	if diff.WorkerCountChanged {
		a.pool.SetWorkers(context.Background(), diff.NewWorkerCount)
		slog.Info("app: config reload applied worker count", "workers", diff.NewWorkerCount)
	}
	if diff.MaxCallsChanged {
		a.explorer.SetMaxCalls(diff.NewMaxCalls)
		slog.Info("app: config reload applied max calls", "max_calls", diff.NewMaxCalls)
	}
	if diff.MaxWallTimeChanged {
		a.explorer.SetMaxWallTime(time.Duration(diff.NewMaxWallTimeS) * time.Second)
		slog.Info("app: config reload applied max wall time", "max_wall_time_s", diff.NewMaxWallTimeS)
	}
	if diff.PlateauWindowChanged {
		a.stats.SetPlateauWindow(diff.NewPlateauWindow)
		slog.Info("app: config reload applied plateau window", "plateau_window", diff.NewPlateauWindow)
	}
}

// parseLogLevel mirrors cmd/ivrwalker's startup level parsing so a
// hot-reloaded level string maps the same way a restart would.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lateEventPruneInterval is how often the correlator's buffered late
// webhook events are swept for entries older than its buffer window.
const lateEventPruneInterval = 30 * time.Second

// initLateEventPruning starts a background sweep of the correlator's late-
// event buffer so a webhook that never found a waiting worker doesn't sit
// in memory past its buffer window for the rest of the process lifetime.
func (a *App) initLateEventPruning() {
	ticker := time.NewTicker(lateEventPruneInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				a.correlator.PruneLateEvents()
			case <-done:
				return
			}
		}
	}()
	a.closers = append(a.closers, func() error {
		ticker.Stop()
		close(done)
		return nil
	})
}

// initProviders builds the voice, transcriber, and LLM providers from the
// registry, wrapping each in a [resilience] fallback group so a configured
// Fallback name is tried automatically when the primary's circuit opens.
func (a *App) initProviders(registry *config.Registry) error {
	if a.voiceProvider == nil {
		p, err := buildVoice(registry, a.cfg.Providers.Voice)
		if err != nil {
			return fmt.Errorf("voice provider %q: %w", a.cfg.Providers.Voice.Name, err)
		}
		a.voiceProvider = p
	}
	if a.transcriberProvider == nil {
		p, err := buildTranscriber(registry, a.cfg.Providers.Transcriber)
		if err != nil {
			return fmt.Errorf("transcriber provider %q: %w", a.cfg.Providers.Transcriber.Name, err)
		}
		a.transcriberProvider = p
	}
	if a.llmProvider == nil {
		p, err := buildLLM(registry, a.cfg.Providers.LLM)
		if err != nil {
			return fmt.Errorf("llm provider %q: %w", a.cfg.Providers.LLM.Name, err)
		}
		a.llmProvider = p
	}
	return nil
}

// buildVoice constructs the primary voice provider and, if entry.Fallback is
// set, wraps it with a second instance built under that name.
func buildVoice(registry *config.Registry, entry config.ProviderEntry) (voice.Provider, error) {
	primary, err := registry.CreateVoice(entry)
	if err != nil {
		return nil, err
	}
	if entry.Fallback == "" {
		return primary, nil
	}
	fb := resilience.NewVoiceFallback(primary, entry.Name, resilience.FallbackConfig{})
	fallback, err := registry.CreateVoice(config.ProviderEntry{Name: entry.Fallback})
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback, err)
	}
	fb.AddFallback(entry.Fallback, fallback)
	return fb, nil
}

// buildTranscriber mirrors buildVoice for the transcriber provider kind.
func buildTranscriber(registry *config.Registry, entry config.ProviderEntry) (transcriber.Provider, error) {
	primary, err := registry.CreateTranscriber(entry)
	if err != nil {
		return nil, err
	}
	if entry.Fallback == "" {
		return primary, nil
	}
	fb := resilience.NewTranscriberFallback(primary, entry.Name, resilience.FallbackConfig{})
	fallback, err := registry.CreateTranscriber(config.ProviderEntry{Name: entry.Fallback})
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback, err)
	}
	fb.AddFallback(entry.Fallback, fallback)
	return fb, nil
}

// buildLLM mirrors buildVoice for the LLM provider kind.
func buildLLM(registry *config.Registry, entry config.ProviderEntry) (llm.Provider, error) {
	primary, err := registry.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	if entry.Fallback == "" {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
	fallback, err := registry.CreateLLM(config.ProviderEntry{Name: entry.Fallback})
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback, err)
	}
	fb.AddFallback(entry.Fallback, fallback)
	return fb, nil
}

// initPool builds the worker pool backed by a single shared Worker whose
// Dependencies reference this App's graph/frontier/stats/correlator and
// resolved providers.
func (a *App) initPool() {
	run := a.cfg.Run

	w := worker.New(worker.Dependencies{
		Graph:                  a.graph,
		Correlator:             a.correlator,
		Stats:                  a.stats,
		Voice:                  a.voiceProvider,
		Transcriber:            a.transcriberProvider,
		LLM:                    a.llmProvider,
		Download:               newHTTPDownloader().Download,
		LLMDedup:               &singleflight.Group{},
		PhoneNumber:            run.TargetPhoneNumber,
		Scenario:               run.ScenarioDescription,
		CallTimeout:            run.CallTimeoutDuration(),
		LLMRetryMax:            run.LLMRetryMax,
		BreadthCap:             run.WorkerCount,
		AllowMultipleGreetings: run.AllowMultipleGreetings,
		Temperature:            0,
		Seed:                   run.RandomSeed,
	})

	a.pool = pool.New(w, a.frontier, pool.Config{
		Workers:       run.WorkerCount,
		TaskRetryMax:  run.TaskRetryMax,
		GraceShutdown: a.cfg.Server.GraceShutdown(),
		Metrics:       a.metrics,
	})
}

// initExplorer builds the top-level control loop bounding one run.
func (a *App) initExplorer() {
	run := a.cfg.Run
	a.explorer = explorer.New(a.frontier, a.pool, a.graph, a.stats, explorer.Config{
		MaxCalls:    run.MaxCalls,
		MaxWallTime: run.MaxWallTimeDuration(),
		RandomSeed:  run.RandomSeed,
		Metrics:     a.metrics,
	})
}

// initServer builds the HTTP server for the webhook, graph/stats read API,
// health probes, and metrics scrape endpoint.
func (a *App) initServer() {
	checkers := []health.Checker{
		{Name: "providers", Check: a.checkProviders},
	}
	a.server = httpapi.NewServer(httpapi.ServerConfig{
		Addr:       a.cfg.Server.ListenAddr,
		Correlator: a.correlator,
		Graph:      a.graph,
		Stats:      a.stats,
		Metrics:    a.metrics,
		Checkers:   checkers,
	})
}

// checkProviders reports a degraded readiness state if every backend in any
// resilience-wrapped provider's fallback group has an open circuit.
func (a *App) checkProviders(ctx context.Context) error {
	for kind, states := range a.providerStates() {
		if len(states) == 0 {
			continue
		}
		allOpen := true
		for _, s := range states {
			if s != resilience.StateOpen {
				allOpen = false
				break
			}
		}
		if allOpen {
			return fmt.Errorf("%s: every backend circuit is open", kind)
		}
	}
	return nil
}

// providerStates collects circuit breaker states from any provider that
// exposes them (only resilience-wrapped providers with a configured
// fallback do).
func (a *App) providerStates() map[string]map[string]resilience.State {
	type stateReporter interface {
		States() map[string]resilience.State
	}
	out := make(map[string]map[string]resilience.State)
	if v, ok := a.voiceProvider.(stateReporter); ok {
		out["voice"] = v.States()
	}
	if v, ok := a.transcriberProvider.(stateReporter); ok {
		out["transcriber"] = v.States()
	}
	if v, ok := a.llmProvider.(stateReporter); ok {
		out["llm"] = v.States()
	}
	return out
}

// Run starts the HTTP server and drives the exploration loop to completion.
// It returns once the explorer reaches quiescence or ctx is cancelled.
func (a *App) Run(ctx context.Context) (explorer.Summary, error) {
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("app: http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	summary := a.explorer.Run(ctx)

	select {
	case err := <-serverErr:
		if err != nil {
			slog.Warn("app: http server exited with error", "err", err)
		}
	default:
	}

	slog.Info("app: exploration run finished", "reason", summary.Reason,
		"calls_attempted", summary.Stats.CallsAttempted,
		"nodes", len(summary.Graph.Nodes),
		"edges", len(summary.Graph.Edges))
	return summary, nil
}

// Shutdown tears down the HTTP server and any registered closers, bounded by
// ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("app: http server shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// Graph returns the conversation graph being built by this run.
func (a *App) Graph() *graph.Graph { return a.graph }

// Stats returns the progress tracker for this run.
func (a *App) Stats() *stats.Tracker { return a.stats }

// Correlator returns the webhook correlator, for tests that need to
// simulate an inbound call-complete delivery without an HTTP round trip.
func (a *App) Correlator() *correlator.Correlator { return a.correlator }

// Explorer returns the control loop for this run, for tests that need to
// observe or adjust a live bound (e.g. after a config hot reload).
func (a *App) Explorer() *explorer.Explorer { return a.explorer }
