package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/stayline/concierge/internal/service"
)

type principalCtxKey struct{}

// DefaultTenantID is the tenant injected when authentication is disabled
// for local development.
const DefaultTenantID = "dev"

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health": true,
}

// Auth returns middleware that validates bearer tokens and injects the
// caller's principal into the request context. When authEnabled is false
// a development principal is injected instead.
//
// The voice WebSocket endpoint authenticates via ?token= because browser
// WebSocket clients cannot set an Authorization header.
func Auth(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled {
				p := &service.Principal{
					Subject:  "dev-user",
					TenantID: DefaultTenantID,
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			p, err := authSvc.VerifyToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// bearerToken extracts the credential from the Authorization header or,
// for WebSocket upgrades, the token query parameter.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*service.Principal)
	return p
}
