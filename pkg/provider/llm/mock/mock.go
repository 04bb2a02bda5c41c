// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled completions to the
// exploration engine without a live LLM backend, and to assert on the
// prompts it was given.
//
// Example:
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "1. press one\n2. press two"}}
//	resp, err := p.Complete(ctx, prompt, llm.CompletionOptions{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ivrwalker/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx    context.Context
	Prompt string
	Opts   llm.CompletionOptions
}

// Provider is a mock implementation of llm.Provider. The zero value returns
// (nil, nil) from Complete until CompleteResponse or CompleteErr is set, or
// Responses is populated to return a different response per call.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when Responses is empty.
	CompleteResponse *llm.CompletionResponse

	// Responses, if non-empty, returns one entry per successive Complete
	// call (by call index), falling back to CompleteResponse once
	// exhausted. Useful for scripting a parse-failure-then-success retry
	// sequence (see llmparse.Parse and the worker's strict reprompt retry).
	Responses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Prompt: prompt, Opts: opts})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if idx < len(p.Responses) {
		return p.Responses[idx], nil
	}
	return p.CompleteResponse, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
