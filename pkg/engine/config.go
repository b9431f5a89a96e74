package engine

import (
	"github.com/rhuss/askdocs/pkg/prompt"
	"github.com/rhuss/askdocs/pkg/provider"
)

// Config holds configuration for the answer engine.
type Config struct {
	// Model is the completion model. Empty means provider.DefaultCompletionModel.
	Model string

	// Temperature is sent with every completion. The zero value is a
	// deterministic temperature of 0.
	Temperature float64

	// MaxTokens caps the completion length. Zero leaves it to the backend.
	MaxTokens int

	// FallbackAnswer replaces the answer when the backend fails. Empty
	// means failures are reported to the client instead.
	FallbackAnswer string

	// MaxSourcesLength caps the sources block in bytes. Zero or negative
	// means prompt.DefaultMaxSourcesLength.
	MaxSourcesLength int

	// EmbeddingModel is used when an embedding request omits the model.
	// Empty means provider.DefaultEmbeddingModel.
	EmbeddingModel string
}

func (c Config) model() string {
	if c.Model == "" {
		return provider.DefaultCompletionModel
	}
	return c.Model
}

func (c Config) embeddingModel() string {
	if c.EmbeddingModel == "" {
		return provider.DefaultEmbeddingModel
	}
	return c.EmbeddingModel
}

func (c Config) maxSourcesLength() int {
	if c.MaxSourcesLength <= 0 {
		return prompt.DefaultMaxSourcesLength
	}
	return c.MaxSourcesLength
}
