package chi

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated caller of a credit route.
type Principal struct {
	User  string
	Admin bool
}

// Token binds a bearer token to a principal.
type Token struct {
	Token string
	User  string
	Admin bool
}

type principalKey struct{}

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// PrincipalFromContext returns the caller stored by BearerAuthMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// BearerAuthMiddleware resolves the bearer token to a Principal. Requests
// without a known token are rejected with 403.
func BearerAuthMiddleware(tokens []Token) func(http.Handler) http.Handler {
	principals := make(map[string]Principal, len(tokens))
	for _, t := range tokens {
		if t.Token != "" && t.User != "" {
			principals[t.Token] = Principal{User: t.User, Admin: t.Admin}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusForbidden, CodeForbidden, "authentication required")
				return
			}

			p, ok := principals[strings.TrimSpace(auth[len(bearerPrefix):])]
			if !ok {
				writeError(w, http.StatusForbidden, CodeForbidden, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

// RequireAdmin rejects callers without the admin scope.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.Admin {
			writeError(w, http.StatusForbidden, CodeForbidden, "admin scope required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
