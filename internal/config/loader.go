package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"voice":       {"twilio"},
	"transcriber": {"whisper", "deepgram"},
	"llm":         {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Run = cfg.Run.WithDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validLogLevels lists the accepted values for ServerConfig.LogLevel.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Run
	if cfg.Run.TargetPhoneNumber == "" {
		errs = append(errs, errors.New("run.target_phone_number is required"))
	}
	if cfg.Run.SimilarityThreshold <= 0 || cfg.Run.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("run.similarity_threshold %.2f is out of range (0, 1]", cfg.Run.SimilarityThreshold))
	}
	if cfg.Run.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("run.worker_count %d must be positive", cfg.Run.WorkerCount))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("voice", cfg.Providers.Voice.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	// Provider presence
	if cfg.Providers.Voice.Name == "" {
		errs = append(errs, errors.New("providers.voice.name is required"))
	}
	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	// Fallback must name a different, known provider of the same kind.
	validateFallback("voice", cfg.Providers.Voice)
	validateFallback("transcriber", cfg.Providers.Transcriber)
	validateFallback("llm", cfg.Providers.LLM)

	return errors.Join(errs...)
}

// validateFallback logs a warning (not a hard error) when a fallback name
// equals the primary or is unrecognised — a typo here degrades resilience
// silently rather than breaking startup.
func validateFallback(kind string, entry ProviderEntry) {
	if entry.Fallback == "" {
		return
	}
	if entry.Fallback == entry.Name {
		slog.Warn("provider fallback equals primary, will never be used", "kind", kind, "name", entry.Name)
		return
	}
	validateProviderName(kind, entry.Fallback)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
