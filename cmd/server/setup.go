package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/askdocs/pkg/auth"
	"github.com/rhuss/askdocs/pkg/auth/apikey"
	"github.com/rhuss/askdocs/pkg/auth/jwt"
	"github.com/rhuss/askdocs/pkg/auth/noop"
	"github.com/rhuss/askdocs/pkg/config"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/provider/litellm"
	"github.com/rhuss/askdocs/pkg/provider/openaicompat"
	"github.com/rhuss/askdocs/pkg/storage/memory"
	"github.com/rhuss/askdocs/pkg/storage/postgres"
	"github.com/rhuss/askdocs/pkg/transport"
)

// newProvider returns the backend adapter selected by cfg.Type.
func newProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "", "openai", "vllm":
		return openaicompat.NewClient(openaicompat.Config{
			Name:         cfg.Type,
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Organization: cfg.Organization,
			Timeout:      cfg.Timeout,
		}), nil
	case "litellm":
		return litellm.New(litellm.Config{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Timeout:      cfg.Timeout,
			ModelMapping: cfg.ModelMapping,
		})
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// newStore returns the transcript store for cfg, or a nil store when
// storage is disabled.
func newStore(ctx context.Context, cfg config.StorageConfig) (transport.AnswerStore, error) {
	switch cfg.Type {
	case "none":
		slog.Info("storage disabled")
		return nil, nil
	case "memory":
		s, err := memory.New(cfg.MaxSize)
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return s, nil
	case "postgres":
		s, err := newPostgres(ctx, postgresConfig(cfg.Postgres))
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func newPostgres(ctx context.Context, cfg postgres.Config) (*postgres.Store, error) {
	s, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return s, nil
}

func postgresConfig(cfg config.PostgresConfig) postgres.Config {
	return postgres.Config{
		DSN:            cfg.DSN,
		MaxConns:       cfg.MaxConns,
		MigrateOnStart: cfg.MigrateOnStart,
	}
}

// newAuthMiddleware builds the authentication chain and the optional
// per tier rate limiter.
func newAuthMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
		chain.DefaultDecision = auth.Yes
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			id := auth.Identity{
				Subject:     k.Subject,
				ServiceTier: k.ServiceTier,
				Metadata:    map[string]string{},
			}
			if k.TenantID != "" {
				id.Metadata["tenant_id"] = k.TenantID
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		jc := jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			TierClaim:   cfg.JWT.TierClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		}
		if cfg.JWT.Secret != "" {
			jc.Secret = []byte(cfg.JWT.Secret)
		}
		chain.Authenticators = []auth.Authenticator{jwt.New(jc)}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimits.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimits.Tiers))
		for name, t := range cfg.RateLimits.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
		}
		limiter = auth.NewTokenBucketLimiter(tiers, auth.TierConfig{
			RequestsPerMinute: cfg.RateLimits.Default.RequestsPerMinute,
			Burst:             cfg.RateLimits.Default.Burst,
		})
		slog.Info("rate limiting enabled", "tiers", len(tiers))
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
}
