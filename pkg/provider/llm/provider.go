// Package llm defines the Provider interface for the language model used to
// propose candidate caller responses and judge conversation endpoints.
//
// Implementations must be safe for concurrent use: the exploration engine
// dispatches completions from many workers at once, bounded only by the
// worker pool size.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionOptions controls sampling for a single completion request.
type CompletionOptions struct {
	// Temperature controls output randomness. A fixed value, together with
	// RANDOM_SEED where the backend supports seeded sampling, is what makes
	// exploration runs reproducible under a deterministic mock.
	Temperature float64

	// MaxTokens caps the number of tokens the model may generate. Zero means
	// use the provider default.
	MaxTokens int

	// Seed, when non-zero and supported by the backend, pins sampling for
	// reproducible runs.
	Seed int64
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend able to serve the
// exploration engine's single operation: given a fully-built prompt,
// produce a completion.
type Provider interface {
	// Complete sends prompt to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (*CompletionResponse, error)
}
