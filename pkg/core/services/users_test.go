package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

func TestUpdatePreferences(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUser(t, store, "u1")

	user, err := UpdatePreferences(ctx, store, zap.NewNop(), "u1", Preferences{NotifyTradeCompleted: false})
	require.NoError(t, err)
	assert.False(t, user.NotifyTradeCompleted)

	stored, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, stored.NotifyTradeCompleted)

	user, err = UpdatePreferences(ctx, store, zap.NewNop(), "u1", Preferences{NotifyTradeCompleted: true})
	require.NoError(t, err)
	assert.True(t, user.NotifyTradeCompleted)

	_, err = UpdatePreferences(ctx, store, zap.NewNop(), "ghost", Preferences{})
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = UpdatePreferences(ctx, store, zap.NewNop(), "", Preferences{})
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for id, points := range map[string]int{"u1": 20, "u2": 50, "u3": 20, "u4": 0} {
		seedUser(t, store, id)
		require.NoError(t, store.SetUserPoints(ctx, id, points))
	}

	entries, err := Leaderboard(ctx, store, zap.NewNop(), 0)
	require.NoError(t, err)
	assert.Equal(t, []LeaderboardEntry{
		{Rank: 1, UserID: "u2", Name: "User u2", Points: 50},
		{Rank: 2, UserID: "u1", Name: "User u1", Points: 20},
		{Rank: 2, UserID: "u3", Name: "User u3", Points: 20},
		{Rank: 4, UserID: "u4", Name: "User u4", Points: 0},
	}, entries)

	entries, err = Leaderboard(ctx, store, zap.NewNop(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[1].UserID)
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUser(t, store, "u1")
	require.NoError(t, store.UpsertRole(ctx, &db.Role{ID: "admin", Name: "Admin", Permissions: []string{"manage_shifts"}}))

	user, err := AssignRole(ctx, store, zap.NewNop(), "u1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.RoleID)

	_, err = AssignRole(ctx, store, zap.NewNop(), "u1", "no-such-role")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = AssignRole(ctx, store, zap.NewNop(), "ghost", "admin")
	assert.ErrorIs(t, err, db.ErrNotFound)
}
