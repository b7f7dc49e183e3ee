package repositories

import (
	"context"

	"github.com/lingoswap/backend/internal/models"
)

// FriendRequestRepository describes persistence operations for pending friend requests.
type FriendRequestRepository interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	FindRequest(ctx context.Context, id string) (models.FriendRequest, error)
	FindRequestBetween(ctx context.Context, senderID, recipientID string) (models.FriendRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]models.IncomingRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.OutgoingRequest, error)
	DeleteRequest(ctx context.Context, id string) error
}

// Transactor runs fn as one atomic unit. Repository calls made with the ctx passed to fn
// participate in the unit.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
