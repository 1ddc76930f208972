package middleware

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.User, error)
}

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyToken
)

// RequireToken rejects requests without a valid "Bearer" or "Token"
// Authorization header. On success the user and token are stored on the
// request context and the user id is recorded for core and logging.
func RequireToken(authn Authenticator, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractToken(r.Header.Get("Authorization"))
			if token == "" {
				onFail(w, r, auth.ErrInvalidToken)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				onFail(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			ctx = context.WithValue(ctx, ctxKeyToken, token)
			ctx = core.ContextWithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user set by RequireToken.
func UserFromContext(ctx context.Context) (auth.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(auth.User)
	return u, ok
}

// TokenFromContext returns the token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ctxKeyToken).(string)
	return t
}
