package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/askdocs/pkg/debug"
)

const (
	maxJWKSBody  = 1 << 20
	fetchTimeout = 10 * time.Second
)

// keySet is one fetched JWKS, indexed by kid.
type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// jwks resolves RSA verification keys by kid. The set is refetched when
// it is older than ttl or when a kid is unknown, but never more often
// than minRefresh, so tokens with made-up kids cannot hammer the
// endpoint. Concurrent refreshes share one request.
type jwks struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	set   atomic.Pointer[keySet]
	group singleflight.Group
}

func (j *jwks) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if set := j.set.Load(); set != nil && j.now().Sub(set.fetchedAt) < j.ttl {
		if k, ok := set.keys[kid]; ok {
			return k, nil
		}
	}

	v, err, _ := j.group.Do("jwks", func() (any, error) {
		return j.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	k, ok := v.(*keySet).keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return k, nil
}

// refresh returns a current key set, fetching one unless the last fetch
// is younger than minRefresh. On fetch failure a previous set is kept.
func (j *jwks) refresh(ctx context.Context) (*keySet, error) {
	prev := j.set.Load()
	if prev != nil && j.now().Sub(prev.fetchedAt) < j.minRefresh {
		return prev, nil
	}

	// The fetch is shared by all waiting requests, so it must not die
	// with the one request that happened to start it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()

	set, err := j.fetch(ctx)
	if err != nil {
		if prev != nil {
			slog.Warn("JWKS refresh failed, keeping cached keys", "url", j.url, "error", err)
			return prev, nil
		}
		return nil, err
	}
	j.set.Store(set)
	debug.Log("auth", "JWKS refreshed", "keys", len(set.keys), "url", j.url)
	return set, nil
}

func (j *jwks) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JWKS: %w", err)
	}

	set := &keySet{keys: make(map[string]*rsa.PublicKey, len(doc.Keys)), fetchedAt: j.now()}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") || k.Kid == "" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		set.keys[k.Kid] = pub
	}
	return set, nil
}

// jsonWebKey holds the RFC 7517 members used for RSA signing keys.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
