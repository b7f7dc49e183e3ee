package relationships

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/repositories"
)

// Relationship describes how two members are connected.
type Relationship struct {
	UserA       models.PublicUser
	UserB       models.PublicUser
	AFriendsB   bool
	BFriendsA   bool
	Symmetric   bool
	RequestAToB *models.FriendRequest
	RequestBToA *models.FriendRequest
}

// Inspect reports both directions of the friendship between a and b along with any pending
// requests. It never modifies anything.
func (e *Engine) Inspect(ctx context.Context, a, b string) (rel Relationship, err error) {
	ctx, done := e.begin(ctx, "inspect", slog.String("user_a", a), slog.String("user_b", b))
	defer func() { done(err) }()

	if a == "" || b == "" {
		return Relationship{}, newError(KindValidation, "two user ids are required")
	}

	userA, err := e.lookupUser(ctx, a, "first user")
	if err != nil {
		return Relationship{}, err
	}
	userB, err := e.lookupUser(ctx, b, "second user")
	if err != nil {
		return Relationship{}, err
	}

	rel = Relationship{
		UserA:     userA.Public(),
		UserB:     userB.Public(),
		AFriendsB: userA.HasFriend(b),
		BFriendsA: userB.HasFriend(a),
	}
	rel.Symmetric = rel.AFriendsB == rel.BFriendsA

	if rel.RequestAToB, err = e.optionalRequest(ctx, a, b); err != nil {
		return Relationship{}, err
	}
	if rel.RequestBToA, err = e.optionalRequest(ctx, b, a); err != nil {
		return Relationship{}, err
	}
	return rel, nil
}

func (e *Engine) optionalRequest(ctx context.Context, sender, recipient string) (*models.FriendRequest, error) {
	req, err := e.requests.FindRequestBetween(ctx, sender, recipient)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, e.storeFailure(ctx, "find friend request", err)
	}
	return &req, nil
}

// ReconcileReport summarises a Reconcile pass.
type ReconcileReport struct {
	Scanned  int
	Repaired []models.FriendEdge
	Removed  []models.FriendEdge
}

// Reconcile restores friend set symmetry. A one-sided edge whose pair still has a pending
// request is the remains of an interrupted accept and is completed; any other one-sided edge
// is removed.
func (e *Engine) Reconcile(ctx context.Context) (report ReconcileReport, err error) {
	ctx, done := e.begin(ctx, "reconcile")
	defer func() { done(err) }()

	edges, err := e.users.ListOneSidedFriendships(ctx)
	if err != nil {
		return ReconcileReport{}, e.storeFailure(ctx, "list one-sided friendships", err)
	}

	report = ReconcileReport{Scanned: len(edges), Repaired: []models.FriendEdge{}, Removed: []models.FriendEdge{}}
	for _, edge := range edges {
		var repaired bool
		txErr := e.tx.InTx(ctx, func(ctx context.Context) error {
			repaired = false

			pending, err := e.pendingBetween(ctx, edge.UserID, edge.FriendID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return e.users.RemoveFriend(ctx, edge.UserID, edge.FriendID)
			}

			if err := e.users.AddFriend(ctx, edge.FriendID, edge.UserID); err != nil {
				return err
			}
			for _, req := range pending {
				if err := e.requests.DeleteRequest(ctx, req.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
					return err
				}
			}
			repaired = true
			return nil
		})
		if txErr != nil {
			return report, e.storeFailure(ctx, "reconcile friendship", txErr)
		}
		if repaired {
			report.Repaired = append(report.Repaired, edge)
		} else {
			report.Removed = append(report.Removed, edge)
		}
	}

	return report, nil
}

func (e *Engine) pendingBetween(ctx context.Context, a, b string) ([]models.FriendRequest, error) {
	var pending []models.FriendRequest
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		req, err := e.requests.FindRequestBetween(ctx, pair[0], pair[1])
		switch {
		case err == nil:
			pending = append(pending, req)
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, err
		}
	}
	return pending, nil
}
