// Package jwt provides a JWT/OIDC authenticator for bearer tokens.
//
// Tokens are verified either against a JWKS (JSON Web Key Set) endpoint
// for RSA-signed tokens, or with a shared secret for HMAC-signed tokens.
// Issuer and audience are checked when configured; subject, tenant,
// service tier and scopes are read from configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/askdocs/pkg/auth"
	"github.com/rhuss/askdocs/pkg/debug"
)

// leeway tolerates clock skew between the token issuer and this server.
const leeway = 30 * time.Second

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer and Audience are checked against iss and aud when set.
	Issuer   string
	Audience string

	// JWKSURL serves the RSA keys tokens are verified with.
	JWKSURL string

	// Secret switches to HS256/384/512 tokens signed with this shared
	// secret. JWKSURL is then ignored.
	Secret []byte

	// Claim names. Defaults: "sub", "tenant_id", "service_tier", "scope".
	// The scopes claim may be a space separated string or an array.
	UserClaim   string
	TenantClaim string
	TierClaim   string
	ScopesClaim string

	// CacheTTL is how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// MinRefreshInterval limits JWKS fetches triggered by unknown kids.
	// Default: 10s, capped at CacheTTL.
	MinRefreshInterval time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	setDefault(&c.UserClaim, "sub")
	setDefault(&c.TenantClaim, "tenant_id")
	setDefault(&c.TierClaim, "service_tier")
	setDefault(&c.ScopesClaim, "scope")
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.MinRefreshInterval <= 0 {
		c.MinRefreshInterval = 10 * time.Second
	}
	c.MinRefreshInterval = min(c.MinRefreshInterval, c.CacheTTL)
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

func setDefault(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *jwks
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	methods := []string{"RS256", "RS384", "RS512"}
	if len(cfg.Secret) > 0 {
		methods = []string{"HS256", "HS384", "HS512"}
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(methods),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys: &jwks{
			url:        cfg.JWKSURL,
			client:     cfg.HTTPClient,
			ttl:        cfg.CacheTTL,
			minRefresh: cfg.MinRefreshInterval,
			now:        time.Now,
		},
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains without a bearer token, says No for any token
// that fails verification and Yes with the token's identity otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	raw, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if raw == "" {
		return reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(token *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, token)
	})
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		return reject(fmt.Errorf("invalid JWT: %w", err))
	}

	identity, err := a.identity(claims)
	if err != nil {
		return reject(err)
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func reject(err error) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}

// verificationKey picks the key for token. The parser has already
// restricted alg to the configured family.
func (a *Authenticator) verificationKey(ctx context.Context, token *jwtlib.Token) (any, error) {
	if len(a.config.Secret) > 0 {
		return a.config.Secret, nil
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token missing kid header")
	}
	key, err := a.keys.key(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("resolving key %q: %w", kid, err)
	}
	return key, nil
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject := stringClaim(claims, a.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.config.TierClaim),
		Scopes:      scopesClaim(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if tenant := stringClaim(claims, a.config.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return id, nil
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func scopesClaim(claims jwtlib.MapClaims, name string) []string {
	var scopes []string
	switch v := claims[name].(type) {
	case string:
		scopes = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
