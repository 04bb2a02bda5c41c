package resilience

import (
	"context"

	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
)

// TranscriberFallback implements [transcriber.Provider] with automatic
// failover across multiple batch speech-to-text backends. Each backend has
// its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[transcriber.Provider]
}

// Compile-time interface assertion.
var _ transcriber.Provider = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary transcriber.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber provider as a fallback.
func (f *TranscriberFallback) AddFallback(name string, provider transcriber.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends the recording to the first healthy provider. If the
// primary fails or its breaker is open, the next fallback is tried.
func (f *TranscriberFallback) Transcribe(ctx context.Context, audio []byte, format string) ([]transcriber.Turn, error) {
	return ExecuteWithResult(f.group, func(p transcriber.Provider) ([]transcriber.Turn, error) {
		return p.Transcribe(ctx, audio, format)
	})
}

// States reports each backend's circuit breaker state, keyed by name.
func (f *TranscriberFallback) States() map[string]State { return f.group.States() }
