package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// bearerPrefix is matched case-sensitively; "bearer x" is not a valid
// credential on this API.
const bearerPrefix = "Bearer "

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the identity attached by the middleware,
// or false when the request is anonymous.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// WithIdentity attaches an identity to ctx. Exported for tests.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Authenticator builds the request-level auth middleware around a
// token service.
type Authenticator struct {
	tokens *TokenService
}

func NewAuthenticator(tokens *TokenService) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Required rejects requests without a valid bearer token.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.middleware(true, next)
}

// Optional lets anonymous requests through with no identity attached.
// A credential that is present but invalid is still rejected; a bad
// token is an error even on public routes.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.middleware(false, next)
}

func (a *Authenticator) middleware(required bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			if required {
				unauthorized(w, "missing token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || strings.TrimSpace(tokenString) == "" {
			unauthorized(w, "invalid token")
			return
		}

		identity, err := a.tokens.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
