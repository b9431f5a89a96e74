package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/provider"
)

// DefaultBaseURL is the OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// ErrNoText is returned by Complete when the backend answered without text.
var ErrNoText = api.NewModelError("no text returned from the completions endpoint")

// ErrNoEmbedding is returned by Embed when the backend returned no vectors.
var ErrNoEmbedding = api.NewModelError("no embedding returned from the embeddings endpoint")

// Config holds the settings for a Client.
type Config struct {
	// Name identifies the provider in logs and metrics. Defaults to "openai".
	Name string

	// BaseURL is the backend root, without the /v1 suffix.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Organization is sent as the OpenAI-Organization header when set.
	Organization string

	// Timeout bounds non-streaming requests. Streams are bounded by the
	// request context only.
	Timeout time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client performs HTTP requests against an OpenAI-compatible backend.
// It implements provider.Provider.
type Client struct {
	name         string
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
	apiKey       string
	organization string
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// Accept both "https://host" and "https://host/v1".
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &Client{
		name: name,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		// Use a client without timeout for streaming. The context controls
		// the request lifetime instead.
		streamClient: &http.Client{
			Transport: cfg.Transport,
		},
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Complete performs non-streaming inference against the Chat Completions
// endpoint. A completion without text yields ErrNoText.
func (c *Client) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	httpReq, err := c.newRequest(ctx, "/v1/chat/completions", TranslateToChat(req, false))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	resp := TranslateResponse(&chatResp)
	if resp.Text == "" {
		return nil, ErrNoText
	}
	return resp, nil
}

// Stream performs streaming inference against the Chat Completions endpoint.
// It returns a channel of ProviderEvents. The channel is closed when the
// stream completes, errors, or the context is cancelled.
func (c *Client) Stream(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
	httpReq, err := c.newRequest(ctx, "/v1/chat/completions", TranslateToChat(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	// Check for error status codes before starting the stream.
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	debug.Log("streaming", "stream opened",
		"provider", c.name,
		"content_type", httpResp.Header.Get("Content-Type"),
	)

	ch := make(chan provider.ProviderEvent, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseStream(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// Embed requests embeddings from the /v1/embeddings endpoint.
func (c *Client) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, api.NewInvalidRequestError("input", "input must not be empty")
	}

	model := req.Model
	if model == "" {
		model = provider.DefaultEmbeddingModel
	}

	httpReq, err := c.newRequest(ctx, "/v1/embeddings", embeddingRequest{Model: model, Input: req.Input})
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&embResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse embeddings response: %s", err.Error()))
	}

	if len(embResp.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	resp, ok := TranslateEmbeddings(&embResp, len(req.Input))
	if !ok {
		return nil, api.NewServerError(fmt.Sprintf(
			"backend returned %d embeddings for %d inputs", len(embResp.Data), len(req.Input)))
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// newRequest builds a JSON POST request with auth headers set.
func (c *Client) newRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	debug.Log("providers", "request", "provider", c.name, "method", http.MethodPost, "url", url)
	debug.Raw("providers", string(body))

	return httpReq, nil
}
