package relationships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingoswap/backend/internal/models"
)

func ids(users []models.PublicUser) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestRecommendExcludesExistingTies(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	me := seedUser(t, store, true)
	friend := seedUser(t, store, true)
	invited := seedUser(t, store, true)
	admirer := seedUser(t, store, true)
	unfinished := seedUser(t, store, false)
	strangers := []models.User{seedUser(t, store, true), seedUser(t, store, true), seedUser(t, store, true)}

	sent, err := engine.SendRequest(ctx, me.ID, friend.ID)
	require.NoError(t, err)
	_, err = engine.AcceptRequest(ctx, sent.Request.ID, friend.ID)
	require.NoError(t, err)

	_, err = engine.SendRequest(ctx, me.ID, invited.ID)
	require.NoError(t, err)
	_, err = engine.SendRequest(ctx, admirer.ID, me.ID)
	require.NoError(t, err)

	recommended, err := engine.Recommend(ctx, me.ID, 0)
	require.NoError(t, err)

	got := ids(recommended)
	for _, excluded := range []string{me.ID, friend.ID, invited.ID, admirer.ID, unfinished.ID} {
		assert.NotContains(t, got, excluded)
	}
	assert.ElementsMatch(t, []string{strangers[0].ID, strangers[1].ID, strangers[2].ID}, got)
}

func TestRecommendLimits(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	me := seedUser(t, store, true)
	for i := 0; i < 60; i++ {
		seedUser(t, store, true)
	}

	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"defaultWhenZero", 0, 10},
		{"defaultWhenNegative", -5, 10},
		{"explicit", 3, 3},
		{"capped", 500, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recommended, err := engine.Recommend(ctx, me.ID, tc.limit)
			require.NoError(t, err)
			assert.Len(t, recommended, tc.want)
			assert.NotContains(t, ids(recommended), me.ID)
		})
	}

	custom := NewEngine(store, store, store, WithDefaultRecommendLimit(4))
	recommended, err := custom.Recommend(ctx, me.ID, 0)
	require.NoError(t, err)
	assert.Len(t, recommended, 4)
}

func TestRecommendUnknownUser(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Recommend(context.Background(), uuid.NewString(), 10)
	requireKind(t, err, KindNotFound)

	_, err = engine.Recommend(context.Background(), "", 10)
	requireKind(t, err, KindValidation)
}

func TestRecommendReturnsEmptySliceWhenEveryoneIsTied(t *testing.T) {
	engine, store := newTestEngine(t)
	me := seedUser(t, store, true)

	recommended, err := engine.Recommend(context.Background(), me.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, recommended)
	assert.Empty(t, recommended)
}
