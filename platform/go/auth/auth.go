// Package auth resolves bearer tokens into UserCredentials and gates routes on them.
package auth

import (
	"context"
	"net/http"
	"slices"
)

type ctxKey struct{}

// RoleManager gates the property-manager routes.
const RoleManager = "manager"

type UserCredentials struct {
	Id            string
	Email         string
	EmailVerified bool
	Name          *string
	Roles         []string
}

func (c *UserCredentials) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	u, ok := ctx.Value(ctxKey{}).(*UserCredentials)
	return u, ok && u != nil
}

// WithUser stores creds on ctx. The JWT middleware uses it; tests use it to fake a login.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxKey{}, creds)
}

// VerifyFunc checks a bearer token and returns its claims.
type VerifyFunc func(ctx context.Context, token string) (Claims, error)

// ExtractFunc turns verified claims into credentials.
type ExtractFunc func(claims Claims) (*UserCredentials, error)

// JWT resolves the bearer token, if any, into UserCredentials on the request context.
// Requests without a token pass through anonymously; RequireUser rejects them where needed.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := BearerToken(r)
			if r.Method == http.MethodOptions || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				invalidToken(w, err.Error())
				return
			}
			creds, err := extract(claims)
			if err != nil {
				invalidToken(w, "invalid claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			unauthorized(w, `Bearer realm="api"`, "a bearer token is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 for anonymous callers and 403 for callers without role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			switch {
			case !ok:
				unauthorized(w, `Bearer realm="api"`, "a bearer token is required")
			case !creds.HasRole(role):
				forbidden(w, role)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
