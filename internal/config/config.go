// Package config provides the configuration schema, loader, and provider
// registry for the exploration engine.
package config

import "time"

// Config is the root configuration structure for the exploration engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Run       RunConfig       `yaml:"run"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the engine's HTTP
// server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// GraceShutdownS bounds how long in-flight calls are given to finish
	// before being abandoned on shutdown, in seconds. Default 10.
	GraceShutdownS int `yaml:"grace_shutdown_s"`
}

// GraceShutdown returns the configured shutdown grace period as a
// [time.Duration], falling back to the 10s default when unset.
func (s ServerConfig) GraceShutdown() time.Duration {
	if s.GraceShutdownS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.GraceShutdownS) * time.Second
}

// RunConfig holds the tunable budgets and thresholds governing one
// exploration run. WorkerCount, MaxCalls, MaxWallTimeS, SimilarityThreshold,
// and PlateauWindow are hot-reloadable when the process is started with a
// config watcher (see [Watcher] and [Diff]); the running explorer applies
// changes on its next scheduling tick. The remaining fields take effect
// only at startup.
type RunConfig struct {
	// TargetPhoneNumber is the number dialed for every outbound call.
	TargetPhoneNumber string `yaml:"target_phone_number"`

	// ScenarioDescription seeds the LLM prompt with context about what
	// the agent under test is expected to do.
	ScenarioDescription string `yaml:"scenario_description"`

	// WorkerCount bounds concurrent in-flight calls. Default 4.
	WorkerCount int `yaml:"worker_count"`

	// MaxCalls caps the total number of calls attempted across the run.
	// Default 100.
	MaxCalls int `yaml:"max_calls"`

	// MaxWallTimeS caps total run duration in seconds. Default 3600.
	MaxWallTimeS int `yaml:"max_wall_time_s"`

	// SimilarityThreshold is the minimum ResponseSimilarity score for two
	// utterances to be considered the same conversation node. Default 0.85.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TaskRetryMax bounds re-enqueue attempts for a retryable call
	// failure. Default 3.
	TaskRetryMax int `yaml:"task_retry_max"`

	// LLMRetryMax bounds reprompt attempts after an unparsable LLM
	// response. Default 2.
	LLMRetryMax int `yaml:"llm_retry_max"`

	// CallTimeoutS bounds how long a worker waits for a call-complete
	// webhook before treating the call as failed. Default 300.
	CallTimeoutS int `yaml:"call_timeout_s"`

	// PlateauWindow is the number of most recent calls inspected for
	// coverage plateau detection. Default 20.
	PlateauWindow int `yaml:"plateau_window"`

	// RandomSeed is forwarded to the LLM as its sampling seed so a run is
	// reproducible where the backend supports seeded sampling; frontier
	// tie-breaking does not use it. Zero means unseeded.
	RandomSeed int64 `yaml:"random_seed"`

	// AllowMultipleGreetings permits more than one root node when the
	// first agent turn varies across calls instead of forcing every call
	// to match the first-discovered root. Default false.
	AllowMultipleGreetings bool `yaml:"allow_multiple_greetings"`
}

// CallTimeoutDuration returns CallTimeoutS as a [time.Duration].
func (r RunConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(r.CallTimeoutS) * time.Second
}

// MaxWallTimeDuration returns MaxWallTimeS as a [time.Duration].
func (r RunConfig) MaxWallTimeDuration() time.Duration {
	return time.Duration(r.MaxWallTimeS) * time.Second
}

// Defaults applied when a [RunConfig] field is left at its YAML zero value.
const (
	DefaultWorkerCount         = 4
	DefaultMaxCalls            = 100
	DefaultMaxWallTimeS        = 3600
	DefaultSimilarityThreshold = 0.85
	DefaultTaskRetryMax        = 3
	DefaultLLMRetryMax         = 2
	DefaultCallTimeoutS        = 300
	DefaultPlateauWindow       = 20
)

// WithDefaults returns a copy of r with zero-valued fields filled in from
// the package defaults.
func (r RunConfig) WithDefaults() RunConfig {
	if r.WorkerCount <= 0 {
		r.WorkerCount = DefaultWorkerCount
	}
	if r.MaxCalls <= 0 {
		r.MaxCalls = DefaultMaxCalls
	}
	if r.MaxWallTimeS <= 0 {
		r.MaxWallTimeS = DefaultMaxWallTimeS
	}
	if r.SimilarityThreshold <= 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if r.TaskRetryMax <= 0 {
		r.TaskRetryMax = DefaultTaskRetryMax
	}
	if r.LLMRetryMax <= 0 {
		r.LLMRetryMax = DefaultLLMRetryMax
	}
	if r.CallTimeoutS <= 0 {
		r.CallTimeoutS = DefaultCallTimeoutS
	}
	if r.PlateauWindow <= 0 {
		r.PlateauWindow = DefaultPlateauWindow
	}
	return r
}

// ProvidersConfig declares which provider implementation to use for each
// external dependency. Each field selects a named provider registered in
// the [Registry].
type ProvidersConfig struct {
	Voice       ProviderEntry `yaml:"voice"`
	Transcriber ProviderEntry `yaml:"transcriber"`
	LLM         ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry]; credentials are read from environment variables at
// construction time rather than stored in config, per APIKeyEnv.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "twilio", "openai").
	Name string `yaml:"name"`

	// APIKeyEnv names the environment variable holding the provider's
	// credential. Leave empty for providers that need no credential.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallback optionally names a second provider of the same kind to try
	// when this one's circuit breaker is open.
	Fallback string `yaml:"fallback"`
}
