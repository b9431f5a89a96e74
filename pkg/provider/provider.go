package provider

import "context"

// Provider abstracts a language-model backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Complete performs a non-streaming completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream performs a streaming completion. The returned channel receives
	// ProviderEvent values and is closed by the provider when the stream
	// completes, fails, or ctx is cancelled. An error return means no
	// stream was opened.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan ProviderEvent, error)

	// Embed returns one embedding vector per input string, in input order.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
