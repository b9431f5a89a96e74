// Package noop provides a no-op authenticator that accepts all requests.
// Used for development and as a default voter in the auth chain.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/askdocs/pkg/auth"
)

// Authenticator always returns Yes with the anonymous identity.
type Authenticator struct{}

var _ auth.Authenticator = (*Authenticator)(nil)

// Authenticate accepts every request.
func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
}
