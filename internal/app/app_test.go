package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/ivrwalker/internal/app"
	"github.com/MrWong99/ivrwalker/internal/config"
	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/pkg/provider/llm"
	llmmock "github.com/MrWong99/ivrwalker/pkg/provider/llm/mock"
	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
	transcribermock "github.com/MrWong99/ivrwalker/pkg/provider/transcriber/mock"
	voicemock "github.com/MrWong99/ivrwalker/pkg/provider/voice/mock"
)

// testConfig returns a minimal, fully-defaulted config for tests.
func testConfig() *config.Config {
	run := config.RunConfig{
		TargetPhoneNumber:   "+15550001111",
		ScenarioDescription: "Calling a pizza delivery IVR to order a large pepperoni pizza.",
	}.WithDefaults()
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   "info",
		},
		Run: run,
		Providers: config.ProvidersConfig{
			Voice:       config.ProviderEntry{Name: "mock-voice"},
			Transcriber: config.ProviderEntry{Name: "mock-transcriber"},
			LLM:         config.ProviderEntry{Name: "mock-llm"},
		},
	}
}

func TestNew_WithInjectedProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	registry := config.NewRegistry()

	application, err := app.New(context.Background(), cfg, registry,
		app.WithVoice(&voicemock.Provider{}),
		app.WithTranscriber(&transcribermock.Provider{}),
		app.WithLLM(&llmmock.Provider{}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	if application.Graph() == nil {
		t.Error("Graph() returned nil")
	}
	if application.Stats() == nil {
		t.Error("Stats() returned nil")
	}
}

func TestNew_MissingProviderFactoryErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	registry := config.NewRegistry() // nothing registered

	_, err := app.New(context.Background(), cfg, registry,
		app.WithTranscriber(&transcribermock.Provider{}),
		app.WithLLM(&llmmock.Provider{}),
	)
	if err == nil {
		t.Fatal("New() expected an error when the voice provider factory is unregistered, got nil")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	registry := config.NewRegistry()

	application, err := app.New(context.Background(), cfg, registry,
		app.WithVoice(&voicemock.Provider{}),
		app.WithTranscriber(&transcribermock.Provider{}),
		app.WithLLM(&llmmock.Provider{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Shutdown must be idempotent.
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

const hotReloadYAML = `
server:
  listen_addr: "127.0.0.1:0"
  log_level: info
run:
  target_phone_number: "+15550001111"
  scenario_description: "Calling a pizza delivery IVR to order a large pepperoni pizza."
  max_calls: 100
  max_wall_time_s: 60
providers:
  voice:
    name: mock-voice
  transcriber:
    name: mock-transcriber
  llm:
    name: mock-llm
`

const hotReloadUpdatedYAML = `
server:
  listen_addr: "127.0.0.1:0"
  log_level: info
run:
  target_phone_number: "+15550001111"
  scenario_description: "Calling a pizza delivery IVR to order a large pepperoni pizza."
  max_calls: 7
  max_wall_time_s: 60
providers:
  voice:
    name: mock-voice
  transcriber:
    name: mock-transcriber
  llm:
    name: mock-llm
`

func TestApp_ConfigWatchAppliesMaxCallsHotReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(hotReloadYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	registry := config.NewRegistry()

	application, err := app.New(context.Background(), cfg, registry,
		app.WithVoice(&voicemock.Provider{}),
		app.WithTranscriber(&transcribermock.Provider{}),
		app.WithLLM(&llmmock.Provider{}),
		app.WithConfigWatch(path, config.WithInterval(20*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}()

	if got := application.Explorer().MaxCalls(); got != 100 {
		t.Fatalf("MaxCalls() before reload = %d, want 100", got)
	}

	if err := os.WriteFile(path, []byte(hotReloadUpdatedYAML), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if application.Explorer().MaxCalls() == 7 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the max_calls hot reload to apply, last seen %d", application.Explorer().MaxCalls())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestApp_RunExhaustsSingleBranchScript(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Run.MaxCalls = 10
	cfg.Run.MaxWallTimeS = 5

	voiceProv := &voicemock.Provider{NextCallID: "call-1"}
	transcriberProv := &transcribermock.Provider{
		TurnsResponse: []transcriber.Turn{
			{Speaker: "agent", Text: "thank you for calling, goodbye"},
		},
	}
	llmProv := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "TERMINAL: true"},
	}

	registry := config.NewRegistry()
	application, err := app.New(context.Background(), cfg, registry,
		app.WithVoice(voiceProv),
		app.WithTranscriber(transcriberProv),
		app.WithLLM(llmProv),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// The webhook signal is buffered by the correlator until the worker
	// registers the matching call id, so it is safe to deliver it before
	// Run starts the exploration loop.
	application.Correlator().Signal(correlator.Event{
		CallID:       "call-1",
		Status:       "completed",
		RecordingURL: "https://example.test/recording.wav",
		DurationS:    3.5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, runErr := application.Run(ctx)
	if runErr != nil {
		t.Fatalf("Run() error: %v", runErr)
	}
	if summary.Reason != "frontier_exhausted" {
		t.Fatalf("Reason = %q, want frontier_exhausted", summary.Reason)
	}
	if summary.Stats.CallsSucceeded != 1 {
		t.Errorf("CallsSucceeded = %d, want 1", summary.Stats.CallsSucceeded)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
