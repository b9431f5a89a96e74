package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}
	switch c.Server.StreamFormat {
	case "raw", "sse":
	default:
		errs = append(errs, fmt.Errorf("server.stream_format must be \"raw\" or \"sse\", got %q", c.Server.StreamFormat))
	}

	if c.Engine.Temperature < 0 || c.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature must be between 0 and 2, got %g", c.Engine.Temperature))
	}
	if c.Engine.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.max_tokens must be >= 0, got %d", c.Engine.MaxTokens))
	}
	if c.Engine.MaxSourcesLength < 0 {
		errs = append(errs, fmt.Errorf("engine.max_sources_length must be >= 0, got %d", c.Engine.MaxSourcesLength))
	}

	errs = append(errs, c.validateProvider()...)

	switch c.Storage.Type {
	case "none", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	errs = append(errs, c.validateAuth()...)

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (c *Config) validateProvider() []error {
	var errs []error

	switch c.Provider.Type {
	case "openai", "vllm", "litellm":
	default:
		errs = append(errs, fmt.Errorf("provider.type must be \"openai\", \"vllm\" or \"litellm\", got %q", c.Provider.Type))
	}

	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return append(errs, fmt.Errorf("provider.base_url must be an http(s) URL, got %q", c.Provider.BaseURL))
	}

	if c.Provider.APIKey == "" && c.Provider.APIKeyFile == "" && IsOpenAIEndpoint(c.Provider.BaseURL) {
		errs = append(errs, fmt.Errorf("provider.api_key (or OPENAI_API_KEY) is required for %s", c.Provider.BaseURL))
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout must be >= 0, got %s", c.Provider.Timeout))
	}
	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url or auth.jwt.secret is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimits.Default.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limits.default.requests_per_minute must be >= 0"))
	}
	for name, t := range c.Auth.RateLimits.Tiers {
		if t.RequestsPerMinute < 0 || t.Burst < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limits.tiers.%s: values must be >= 0", name))
		}
	}

	return errs
}

// IsOpenAIEndpoint reports whether baseURL points at the public OpenAI API.
func IsOpenAIEndpoint(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), "api.openai.com")
}
