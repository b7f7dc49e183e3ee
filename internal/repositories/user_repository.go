package repositories

import (
	"context"
	"time"

	"github.com/lingoswap/backend/internal/models"
)

// UserRepository describes persistence operations for member accounts and their friend sets.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByLogin(ctx context.Context, login string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, profile models.Profile, updatedAt time.Time) (models.User, error)
	SetProfilePic(ctx context.Context, id, url string, updatedAt time.Time) error
	MarkOnboarded(ctx context.Context) (int64, error)

	// AddFriend and RemoveFriend touch a single direction of a friendship and are idempotent.
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListFriends(ctx context.Context, userID string) ([]models.PublicUser, error)
	FindCandidates(ctx context.Context, exclude []string, limit int) ([]models.PublicUser, error)
	ListOneSidedFriendships(ctx context.Context) ([]models.FriendEdge, error)
}
