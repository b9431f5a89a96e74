// Package config provides unified configuration for the askdocs server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (ASKDOCS_ prefix, plus OPENAI_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the askdocs server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Provider      ProviderConfig      `yaml:"provider"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streams are unbounded)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	StreamFormat    string        `yaml:"stream_format"`    // "raw" or "sse", default: "raw"
}

// EngineConfig holds answer generation settings.
type EngineConfig struct {
	Model            string  `yaml:"model"`              // default: gpt-3.5-turbo
	Temperature      float64 `yaml:"temperature"`        // default: 0
	MaxTokens        int     `yaml:"max_tokens"`         // default: backend decides
	FallbackAnswer   string  `yaml:"fallback_answer"`    // empty: report failures
	MaxSourcesLength int     `yaml:"max_sources_length"` // default: 9000
	EmbeddingModel   string  `yaml:"embedding_model"`    // default: text-embedding-ada-002
}

// ProviderConfig holds settings of the OpenAI-compatible backend.
type ProviderConfig struct {
	Type         string        `yaml:"type"`         // "openai", "vllm" or "litellm", default: "openai"
	BaseURL      string        `yaml:"base_url"`     // default: https://api.openai.com
	APIKey       string        `yaml:"api_key"`      // required for the OpenAI endpoint
	APIKeyFile   string        `yaml:"api_key_file"` // _file variant for api_key
	Organization string        `yaml:"organization"` // optional
	Timeout      time.Duration `yaml:"timeout"`      // default: 120s

	// ModelMapping renames models before they reach a LiteLLM proxy.
	ModelMapping map[string]string `yaml:"model_mapping"`
}

// StorageConfig holds answer transcript storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication and rate limiting settings.
type AuthConfig struct {
	Type       string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys    []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT        JWTConfig       `yaml:"jwt"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds bearer token validation settings for type=jwt.
// Either JWKSURL or Secret must be set.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"` // _file variant for secret
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per service tier request limits.
type RateLimitConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Default TierLimit            `yaml:"default"`
	Tiers   map[string]TierLimit `yaml:"tiers"`
}

// TierLimit is the token bucket of one service tier.
type TierLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true, served on GET /metrics
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "trace", "debug", "info", "warn" or "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 << 20,
			StreamFormat:    "raw",
		},
		Provider: ProviderConfig{
			Type:    "openai",
			BaseURL: DefaultProviderURL,
			Timeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimits: RateLimitConfig{
				Default: TierLimit{RequestsPerMinute: 60},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultProviderURL is the public OpenAI endpoint.
const DefaultProviderURL = "https://api.openai.com"
