// Package api implements the local notes backend: GraphQL over HTTP for
// queries and mutations and a graphql-transport-ws endpoint for subscriptions.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeJWT      = "jwt"
)

// AnonymousOwner owns every note when auth is disabled.
const AnonymousOwner = "anonymous"

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored by AuthMiddleware.
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Authenticator resolves an Authorization value to the owning user.
type Authenticator struct {
	mode   string
	secret []byte
}

// NewAuthenticator creates an Authenticator. In disabled mode every caller
// is AnonymousOwner; in jwt mode tokens must be HS256-signed with secret.
func NewAuthenticator(mode string, secret []byte) Authenticator {
	if mode == "" {
		mode = AuthModeDisabled
	}
	return Authenticator{mode: mode, secret: secret}
}

// Owner returns the subject of the credential. A "Bearer " prefix is optional.
func (a Authenticator) Owner(authorization string) (string, error) {
	if a.mode == AuthModeDisabled {
		return AnonymousOwner, nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authorization), "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: missing token", apperr.ErrUnauthorized)
	}
	id, err := session.Verify(a.secret, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	return id.Subject, nil
}

// AuthMiddleware rejects requests whose Authorization header does not
// resolve to an owner, and stores the owner in the request context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := auth.Owner(r.Header.Get("Authorization"))
			if err != nil {
				writeErrors(w, http.StatusUnauthorized, errorBody(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
