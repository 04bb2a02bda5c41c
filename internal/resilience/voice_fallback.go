package resilience

import (
	"context"

	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
)

// VoiceFallback implements [voice.Provider] with automatic failover across
// multiple outbound telephony backends. Each backend has its own circuit
// breaker, tripped on the dial_failed bursts described in the engine's
// error taxonomy.
type VoiceFallback struct {
	group *FallbackGroup[voice.Provider]
}

// Compile-time interface assertion.
var _ voice.Provider = (*VoiceFallback)(nil)

// NewVoiceFallback creates a [VoiceFallback] with primary as the preferred
// backend.
func NewVoiceFallback(primary voice.Provider, primaryName string, cfg FallbackConfig) *VoiceFallback {
	return &VoiceFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional voice provider as a fallback.
func (f *VoiceFallback) AddFallback(name string, provider voice.Provider) {
	f.group.AddFallback(name, provider)
}

// PlaceCall dials through the first healthy provider. If the primary fails
// or its breaker is open, the next fallback is tried.
func (f *VoiceFallback) PlaceCall(ctx context.Context, script []string, phoneNumber string) (string, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) (string, error) {
		return p.PlaceCall(ctx, script, phoneNumber)
	})
}

// States reports each backend's circuit breaker state, keyed by name.
func (f *VoiceFallback) States() map[string]State { return f.group.States() }
