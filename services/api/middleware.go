package api

import (
	"context"
	"net/http"
	"strings"
)

type actorContextKey struct{}

// ActorFromContext returns the authenticated identity placed on the
// request context by the auth middleware.
func ActorFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(actorContextKey{}).(Claims)
	return claims, ok
}

// BearerToken extracts the session token from the Authorization header or
// the token cookie. The cookie form survives for the websocket handshake,
// where custom headers are awkward for browser clients.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth gates a route on a valid, unrevoked session.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authority.Authenticate(r.Context(), BearerToken(r))
		if err != nil {
			respondFailure(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
