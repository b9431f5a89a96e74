// Package apikey provides an API key authenticator that validates
// keys against a static key store using SHA-256 hashing and
// constant-time comparison.
//
// Keys are accepted as a bearer token or in the X-API-Key header.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/askdocs/pkg/auth"
)

// HeaderName is the alternative header carrying an API key.
const HeaderName = "X-API-Key"

// KeyEntry maps a key hash to an identity.
type KeyEntry struct {
	KeyHash  [32]byte
	Identity auth.Identity
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

// New creates an API key authenticator from a list of raw keys and identities.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]KeyEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, KeyEntry{
			KeyHash:  sha256.Sum256([]byte(e.Key)),
			Identity: e.Identity,
		})
	}
	return a
}

// Authenticate looks up the presented key.
// Returns Yes if valid, No if a key is present but unknown,
// Abstain if the request carries no key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	key, present := presentedKey(r)
	if !present {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	keyHash := sha256.Sum256([]byte(key))

	// Compare against every entry so timing does not reveal the position.
	var match *KeyEntry
	for i := range a.keys {
		if subtle.ConstantTimeCompare(keyHash[:], a.keys[i].KeyHash[:]) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	// Copy identity to avoid shared state.
	id := match.Identity
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

// presentedKey returns the key from the Authorization or X-API-Key header.
func presentedKey(r *http.Request) (string, bool) {
	if token, ok := auth.BearerToken(r); ok {
		return token, true
	}
	if values, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(values) > 0 {
		return strings.TrimSpace(values[0]), true
	}
	return "", false
}
