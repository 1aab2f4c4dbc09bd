package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// Authenticator resolves an access token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (domain.User, error)
}

type userCtxKey struct{}

// AuthnMiddleware requires a valid access token, read from the accessToken
// cookie or, failing that, the Authorization bearer header. The resolved
// user (without secrets) is stored on the request context.
func AuthnMiddleware(auth Authenticator) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.Authenticate(r.Context(), accessToken(r))
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := httpx.WithUserID(r.Context(), user.ID)
			ctx = slogx.WithUserID(ctx, user.ID)
			ctx = context.WithValue(ctx, userCtxKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(domain.User)
	return u, ok
}
