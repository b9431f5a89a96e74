package litellm

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/provider/openaicompat"
)

// Provider implements provider.Provider for LiteLLM proxy servers.
type Provider struct {
	client  *openaicompat.Client
	mapping map[string]string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Provider with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("litellm: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	mapping := make(map[string]string, len(cfg.ModelMapping))
	for from, to := range cfg.ModelMapping {
		mapping[from] = to
	}

	return &Provider{
		client: openaicompat.NewClient(openaicompat.Config{
			Name:    "litellm",
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}),
		mapping: mapping,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.client.Name()
}

// Complete performs a non-streaming completion with the mapped model.
func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return p.client.Complete(ctx, p.mapCompletion(req))
}

// Stream performs a streaming completion with the mapped model.
func (p *Provider) Stream(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
	return p.client.Stream(ctx, p.mapCompletion(req))
}

// Embed requests embeddings with the mapped model.
func (p *Provider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	mapped := *req
	mapped.Model = p.mapModel(req.Model)
	return p.client.Embed(ctx, &mapped)
}

// Close releases provider resources.
func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) mapCompletion(req *provider.CompletionRequest) *provider.CompletionRequest {
	mapped := *req
	mapped.Model = p.mapModel(req.Model)
	return &mapped
}

func (p *Provider) mapModel(model string) string {
	if to, ok := p.mapping[model]; ok {
		debug.Log("providers", "model mapped", "from", model, "to", to)
		return to
	}
	return model
}
