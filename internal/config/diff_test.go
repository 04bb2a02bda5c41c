package config_test

import (
	"testing"

	"github.com/MrWong99/ivrwalker/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		Run:    config.RunConfig{WorkerCount: 4, SimilarityThreshold: 0.85},
	}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Error("expected no changes for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: "info"}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: "debug"}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != "debug" {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_WorkerCountChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Run: config.RunConfig{WorkerCount: 4}}
	new := &config.Config{Run: config.RunConfig{WorkerCount: 8}}

	d := config.Diff(old, new)
	if !d.WorkerCountChanged {
		t.Error("expected WorkerCountChanged=true")
	}
	if d.NewWorkerCount != 8 {
		t.Errorf("expected NewWorkerCount=8, got %d", d.NewWorkerCount)
	}
}

func TestDiff_SimilarityThresholdChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Run: config.RunConfig{SimilarityThreshold: 0.85}}
	new := &config.Config{Run: config.RunConfig{SimilarityThreshold: 0.9}}

	d := config.Diff(old, new)
	if !d.SimilarityThresholdChanged {
		t.Error("expected SimilarityThresholdChanged=true")
	}
	if d.NewSimilarityThreshold != 0.9 {
		t.Errorf("expected NewSimilarityThreshold=0.9, got %v", d.NewSimilarityThreshold)
	}
}

func TestDiff_MaxCallsAndWallTimeChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Run: config.RunConfig{MaxCalls: 100, MaxWallTimeS: 3600}}
	new := &config.Config{Run: config.RunConfig{MaxCalls: 250, MaxWallTimeS: 7200}}

	d := config.Diff(old, new)
	if !d.MaxCallsChanged || d.NewMaxCalls != 250 {
		t.Errorf("expected MaxCallsChanged=true, NewMaxCalls=250, got %v/%d", d.MaxCallsChanged, d.NewMaxCalls)
	}
	if !d.MaxWallTimeChanged || d.NewMaxWallTimeS != 7200 {
		t.Errorf("expected MaxWallTimeChanged=true, NewMaxWallTimeS=7200, got %v/%d", d.MaxWallTimeChanged, d.NewMaxWallTimeS)
	}
}

func TestDiff_PlateauWindowChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Run: config.RunConfig{PlateauWindow: 20}}
	new := &config.Config{Run: config.RunConfig{PlateauWindow: 30}}

	d := config.Diff(old, new)
	if !d.PlateauWindowChanged || d.NewPlateauWindow != 30 {
		t.Errorf("expected PlateauWindowChanged=true, NewPlateauWindow=30, got %v/%d", d.PlateauWindowChanged, d.NewPlateauWindow)
	}
}

func TestDiff_ProviderSelectionIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai"}}}
	new := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "anthropic"}}}

	d := config.Diff(old, new)
	if d.Changed() {
		t.Error("provider selection changes should not be reported as hot-reloadable")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		Run:    config.RunConfig{WorkerCount: 4, MaxCalls: 100},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: "warn"},
		Run:    config.RunConfig{WorkerCount: 8, MaxCalls: 100},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.WorkerCountChanged {
		t.Error("expected WorkerCountChanged=true")
	}
	if d.MaxCallsChanged {
		t.Error("expected MaxCallsChanged=false")
	}
}
