package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// PointLimits bounds the points an admin may attach to a task
type PointLimits struct {
	Min int
	Max int
}

// TaskSpec describes a task to create
type TaskSpec struct {
	Title            string
	Description      string
	TaskDate         string
	Category         string
	Points           int
	VolunteersNeeded int
	CreatedBy        string
}

// CreateTask validates and stores a new task
func CreateTask(ctx context.Context, store db.TaskStore, logger *zap.Logger, spec TaskSpec, limits PointLimits) (*db.Task, error) {
	if strings.TrimSpace(spec.Title) == "" {
		return nil, fmt.Errorf("task title is required: %w", db.ErrInvalidArgument)
	}
	if spec.TaskDate != "" {
		if err := validateDate("task date", spec.TaskDate); err != nil {
			return nil, err
		}
	}
	if spec.Points < limits.Min || spec.Points > limits.Max {
		return nil, fmt.Errorf("points must be between %d and %d, got %d: %w", limits.Min, limits.Max, spec.Points, db.ErrInvalidArgument)
	}
	if spec.VolunteersNeeded <= 0 {
		return nil, fmt.Errorf("volunteers needed must be positive, got %d: %w", spec.VolunteersNeeded, db.ErrInvalidArgument)
	}

	task := &db.Task{
		ID:               uuid.New().String(),
		Title:            strings.TrimSpace(spec.Title),
		Description:      spec.Description,
		TaskDate:         spec.TaskDate,
		Category:         spec.Category,
		Points:           spec.Points,
		VolunteersNeeded: spec.VolunteersNeeded,
		CreatedBy:        spec.CreatedBy,
	}

	logger.Debug("Creating task", zap.String("id", task.ID), zap.String("title", task.Title), zap.Int("points", task.Points))

	if err := store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.Info("Task created", zap.String("id", task.ID), zap.String("title", task.Title))
	return task, nil
}

// SignUpForTask takes one free place on an open task
func SignUpForTask(ctx context.Context, store db.TaskStore, logger *zap.Logger, taskID, userID string) error {
	if err := requireIDs("task id", taskID, "user id", userID); err != nil {
		return err
	}

	logger.Debug("Signing up for task", zap.String("task_id", taskID), zap.String("user_id", userID))

	if err := store.SignUp(ctx, taskID, userID); err != nil {
		logger.Warn("Task signup rejected", zap.String("task_id", taskID), zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to sign up for task: %w", err)
	}

	logger.Info("Signed up for task", zap.String("task_id", taskID), zap.String("user_id", userID))
	return nil
}

// UnregisterFromTask gives back a place on a task that is not yet completed
func UnregisterFromTask(ctx context.Context, store db.TaskStore, logger *zap.Logger, taskID, userID string) error {
	if err := requireIDs("task id", taskID, "user id", userID); err != nil {
		return err
	}

	logger.Debug("Unregistering from task", zap.String("task_id", taskID), zap.String("user_id", userID))

	if err := store.Unregister(ctx, taskID, userID); err != nil {
		return fmt.Errorf("failed to unregister from task: %w", err)
	}

	logger.Info("Unregistered from task", zap.String("task_id", taskID), zap.String("user_id", userID))
	return nil
}
