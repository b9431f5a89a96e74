package litellm

import "time"

// Config holds configuration for the LiteLLM provider adapter.
type Config struct {
	// BaseURL is the LiteLLM proxy URL (e.g., "http://localhost:4000").
	BaseURL string

	// APIKey for LiteLLM authentication (optional).
	APIKey string

	// Timeout for non-streaming HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping maps requested model names to LiteLLM model identifiers.
	// For example: {"gpt-3.5-turbo": "openai/gpt-3.5-turbo"}.
	// A model that is not in the map is passed through unchanged.
	ModelMapping map[string]string
}
