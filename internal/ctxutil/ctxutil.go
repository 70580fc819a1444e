// Package ctxutil provides shared request-scoped context key accessors for
// the HTTP transport.
package ctxutil

import (
	"context"

	"github.com/mc-bench/scoring-core/internal/identity"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context, if the caller
// presented a bearer token.
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	if v, ok := ctx.Value(keyClaims).(*identity.Claims); ok {
		return v
	}
	return nil
}
