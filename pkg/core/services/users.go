package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// Preferences are the notification settings a user controls
type Preferences struct {
	NotifyTradeCompleted bool `json:"notifyTradeCompleted"`
}

// LeaderboardEntry is one row of the points leaderboard. Users with equal
// points share a rank.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// UpdatePreferences stores the user's notification settings and returns the
// updated account
func UpdatePreferences(ctx context.Context, store db.UserStore, logger *zap.Logger, userID string, prefs Preferences) (*db.User, error) {
	if err := requireIDs("user id", userID); err != nil {
		return nil, err
	}

	if err := store.SetNotifyTradeCompleted(ctx, userID, prefs.NotifyTradeCompleted); err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	logger.Info("Preferences updated", zap.String("user_id", userID), zap.Bool("notify_trade_completed", prefs.NotifyTradeCompleted))
	return user, nil
}

// Leaderboard ranks users by points. A non-positive limit selects the
// default size; larger limits are capped.
func Leaderboard(ctx context.Context, store db.UserStore, logger *zap.Logger, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	limit = min(limit, MaxLeaderboardSize)

	users, err := store.ListUsersByPoints(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		rank := i + 1
		if i > 0 && u.Points == entries[i-1].Points {
			rank = entries[i-1].Rank
		}
		entries = append(entries, LeaderboardEntry{Rank: rank, UserID: u.ID, Name: u.Name, Points: u.Points})
	}

	logger.Debug("Built leaderboard", zap.Int("limit", limit), zap.Int("count", len(entries)))
	return entries, nil
}

// AssignRole moves a user to another role. Permissions follow on the user's
// next request.
func AssignRole(ctx context.Context, store db.UserStore, logger *zap.Logger, userID, roleID string) (*db.User, error) {
	if err := requireIDs("user id", userID, "role id", roleID); err != nil {
		return nil, err
	}

	if err := store.SetUserRole(ctx, userID, roleID); err != nil {
		logger.Warn("Role not assigned", zap.String("user_id", userID), zap.String("role", roleID), zap.Error(err))
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	logger.Info("Role assigned", zap.String("user_id", userID), zap.String("role", roleID))
	return user, nil
}
