// Package mock provides a test double for the transcriber.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ivrwalker/pkg/provider/transcriber"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx    context.Context
	Audio  []byte
	Format string
}

// Provider is a mock implementation of transcriber.Provider. Set Responses
// to return a different turn set per successive call (by call index),
// falling back to TurnsResponse once exhausted.
type Provider struct {
	mu sync.Mutex

	TurnsResponse []transcriber.Turn
	Responses     [][]transcriber.Turn
	Err           error

	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted turn set.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, format string) ([]transcriber.Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: audio, Format: format})

	if p.Err != nil {
		return nil, p.Err
	}
	if idx < len(p.Responses) {
		return p.Responses[idx], nil
	}
	return p.TurnsResponse, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ transcriber.Provider = (*Provider)(nil)
