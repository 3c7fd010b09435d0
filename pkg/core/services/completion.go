package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// CompletionOptions controls how a task completion is processed
type CompletionOptions struct {
	// AwardPoints credits the task's points to signed-up users. It is false
	// when the points system is switched off.
	AwardPoints bool
}

// CompletionResult represents the result of marking a task completed
type CompletionResult struct {
	Task             *db.Task
	AlreadyCompleted bool
	AwardedUserIDs   []string
	PointsAwarded    int
}

// MarkTaskCompleted completes a task and credits its points to every
// signed-up user. Calling it again for the same task is a no-op reported via
// AlreadyCompleted, so points are credited at most once.
func MarkTaskCompleted(ctx context.Context, store db.TaskStore, logger *zap.Logger, taskID string, opts CompletionOptions) (*CompletionResult, error) {
	if err := requireIDs("task id", taskID); err != nil {
		return nil, err
	}

	logger.Debug("Completing task", zap.String("task_id", taskID), zap.Bool("award_points", opts.AwardPoints))

	outcome, err := store.CompleteTask(ctx, taskID, opts.AwardPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	result := &CompletionResult{
		Task:             outcome.Task,
		AlreadyCompleted: outcome.AlreadyCompleted,
		AwardedUserIDs:   outcome.AwardedUserIDs,
	}

	if outcome.AlreadyCompleted {
		logger.Info("Task was already completed, no points awarded", zap.String("task_id", taskID))
		return result, nil
	}

	if len(outcome.AwardedUserIDs) > 0 {
		result.PointsAwarded = outcome.Task.Points
	}

	logger.Info("Task completed",
		zap.String("task_id", taskID),
		zap.Int("points", result.PointsAwarded),
		zap.Strings("awarded_user_ids", outcome.AwardedUserIDs))

	return result, nil
}
