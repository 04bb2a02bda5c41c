// Package mock provides a test double for the voice.Provider interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/ivrwalker/pkg/provider/voice"
)

// PlaceCallCall records a single invocation of PlaceCall.
type PlaceCallCall struct {
	Ctx         context.Context
	Script      []string
	PhoneNumber string
}

// Provider is a mock implementation of voice.Provider. CallIDs are assigned
// sequentially ("call-1", "call-2", ...) unless NextCallID is set.
type Provider struct {
	mu sync.Mutex

	// NextCallID, if non-empty, is returned (and cleared) by the next
	// PlaceCall instead of the sequential default.
	NextCallID string

	// Err, if non-nil, is returned by PlaceCall instead of a call id.
	Err error

	Calls []PlaceCallCall
}

// PlaceCall records the call and returns a deterministic call id.
func (p *Provider) PlaceCall(ctx context.Context, script []string, phoneNumber string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, PlaceCallCall{Ctx: ctx, Script: script, PhoneNumber: phoneNumber})

	if p.Err != nil {
		return "", p.Err
	}
	if p.NextCallID != "" {
		id := p.NextCallID
		p.NextCallID = ""
		return id, nil
	}
	return fmt.Sprintf("call-%d", len(p.Calls)), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ voice.Provider = (*Provider)(nil)
