package handlers

import (
	"context"
	"io"
	"time"

	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/relationships"
)

// UserStore captures the persistence operations required by the auth and profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByLogin(ctx context.Context, login string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, profile models.Profile, updatedAt time.Time) (models.User, error)
	SetProfilePic(ctx context.Context, id, url string, updatedAt time.Time) error
}

// SessionManager issues, refreshes, revokes and verifies authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// RelationshipService is the friend graph as seen by the HTTP layer.
type RelationshipService interface {
	SendRequest(ctx context.Context, senderID, recipientID string) (relationships.SendResult, error)
	AcceptRequest(ctx context.Context, requestID, actingUserID string) (models.FriendRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]models.IncomingRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.OutgoingRequest, error)
	ListFriends(ctx context.Context, userID string) ([]models.PublicUser, error)
	Recommend(ctx context.Context, userID string, limit int) ([]models.PublicUser, error)
}

// ChatTokenMinter issues provider tokens for the chat and video client.
type ChatTokenMinter interface {
	MintToken(ctx context.Context, userID string) (string, error)
	APIKey() string
}

// AvatarStorage persists uploaded profile pictures and returns their public URL.
type AvatarStorage interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error
