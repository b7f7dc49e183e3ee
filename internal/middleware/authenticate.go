package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/logging"
)

// SessionCookieName names the cookie that carries the access token.
const SessionCookieName = "jwt"

// Authenticator resolves an access token to the user it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// RequireUser rejects requests without a valid access token and stores the caller's id on the
// request context for downstream handlers.
func RequireUser(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			token := AccessToken(r)
			if token == "" || authenticator == nil {
				logger.Warn("unauthenticated request")
				unauthorized(w, "authentication required")
				return
			}

			userID, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				logger.Warn("access token rejected", "error", err)
				unauthorized(w, "invalid or expired session")
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken extracts the bearer token from the Authorization header, falling back to the
// session cookie.
func AccessToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": message})
}
