package relationships

import (
	"context"
	"log/slog"
	"sort"

	"github.com/lingoswap/backend/internal/models"
)

// Recommend lists onboarded members userID has no tie with yet: not themselves, not a friend,
// and no pending request in either direction. limit <= 0 selects the default page size and
// large limits are capped.
func (e *Engine) Recommend(ctx context.Context, userID string, limit int) (users []models.PublicUser, err error) {
	ctx, done := e.begin(ctx, "recommend", slog.String("user_id", userID), slog.Int("limit", limit))
	defer func() { done(err) }()

	if userID == "" {
		return nil, newError(KindValidation, "user id is required")
	}

	switch {
	case limit <= 0:
		limit = e.defaultLimit
	case limit > maxRecommendLimit:
		limit = maxRecommendLimit
	}

	user, err := e.lookupUser(ctx, userID, "user")
	if err != nil {
		return nil, err
	}

	exclude, err := e.exclusionSet(ctx, user)
	if err != nil {
		return nil, err
	}

	users, err = e.users.FindCandidates(ctx, exclude, limit)
	if err != nil {
		return nil, e.storeFailure(ctx, "find candidates", err)
	}
	if users == nil {
		users = []models.PublicUser{}
	}
	return users, nil
}

func (e *Engine) exclusionSet(ctx context.Context, user models.User) ([]string, error) {
	seen := map[string]struct{}{user.ID: {}}
	for _, id := range user.Friends {
		seen[id] = struct{}{}
	}

	outgoing, err := e.requests.ListOutgoing(ctx, user.ID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list outgoing requests", err)
	}
	for _, req := range outgoing {
		seen[req.Request.Recipient] = struct{}{}
	}

	incoming, err := e.requests.ListIncoming(ctx, user.ID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list incoming requests", err)
	}
	for _, req := range incoming {
		seen[req.Request.Sender] = struct{}{}
	}

	exclude := make([]string, 0, len(seen))
	for id := range seen {
		exclude = append(exclude, id)
	}
	sort.Strings(exclude)
	return exclude, nil
}
