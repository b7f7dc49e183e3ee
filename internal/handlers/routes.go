package handlers

import (
	"net/http"

	"github.com/lingoswap/backend/internal/metrics"
	"github.com/lingoswap/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Ping: deps.Health}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter, Proxies: deps.Proxies, Cookies: deps.Cookies}
	users := UserHandler{Users: deps.Users, Relationships: deps.Relationships, Avatars: deps.Avatars}
	friends := FriendHandler{Relationships: deps.Relationships}
	chat := ChatHandler{Tokens: deps.Chat}

	var authenticator middleware.Authenticator
	if deps.Sessions != nil {
		authenticator = deps.Sessions
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireUser(authenticator)(h)
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)
	mux.Handle("GET /api/v1/auth/me", protected(auth.Me))
	mux.Handle("POST /api/v1/auth/onboarding", protected(auth.Onboard))

	mux.Handle("GET /api/v1/users/recommended", protected(users.Recommended))
	mux.Handle("GET /api/v1/users/friends", protected(users.Friends))
	mux.Handle("PUT /api/v1/users/me/avatar", protected(users.UploadAvatar))
	mux.Handle("POST /api/v1/users/friend-requests/{id}", protected(friends.Send))
	mux.Handle("PUT /api/v1/users/friend-requests/{id}/accept", protected(friends.Accept))
	mux.Handle("GET /api/v1/users/friend-requests", protected(friends.Incoming))
	mux.Handle("GET /api/v1/users/outgoing-friend-requests", protected(friends.Outgoing))

	mux.Handle("GET /api/v1/chat/token", protected(chat.Token))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Relationships RelationshipService
	Chat          ChatTokenMinter
	Avatars       AvatarStorage
	Health        HealthChecker
	AuthLimiter   RateLimiter
	Proxies       ProxyTrust
	Cookies       CookieConfig
}
