package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/voreskerne/frivillig/pkg/db"
)

// CreateTask inserts a new task
func (d *DB) CreateTask(ctx context.Context, task *db.Task) error {
	if err := d.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by id
func (d *DB) GetTask(ctx context.Context, taskID string) (*db.Task, error) {
	return getTask(d.db.WithContext(ctx), taskID)
}

// ListSignups retrieves the signups of a task
func (d *DB) ListSignups(ctx context.Context, taskID string) ([]db.TaskSignup, error) {
	var signups []db.TaskSignup
	err := d.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at, user_id").Find(&signups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	return signups, nil
}

// SignUp takes one place on an open task for userID
func (d *DB) SignUp(ctx context.Context, taskID, userID string) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.Task{}).
			Where("id = ? AND volunteers_needed > 0 AND is_completed = ?", taskID, false).
			UpdateColumn("volunteers_needed", gorm.Expr("volunteers_needed - 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to reserve task place: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return taskMissOrState(tx, taskID, db.ErrTaskFull)
		}

		err := tx.Create(&db.TaskSignup{TaskID: taskID, UserID: userID}).Error
		if isUniqueViolation(err, "task_signups.") {
			return fmt.Errorf("task %s: %w", taskID, db.ErrAlreadySignedUp)
		}
		if err != nil {
			return fmt.Errorf("failed to insert signup: %w", err)
		}
		return nil
	})
}

// Unregister removes userID from an open task and frees the place
func (d *DB) Unregister(ctx context.Context, taskID, userID string) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		task, err := getTask(tx, taskID)
		if err != nil {
			return err
		}
		if task.IsCompleted {
			return fmt.Errorf("task %s is completed: %w", taskID, db.ErrInvalidState)
		}

		res := tx.Where("task_id = ? AND user_id = ?", taskID, userID).Delete(&db.TaskSignup{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete signup: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("task %s: %w", taskID, db.ErrNotSignedUp)
		}

		err = tx.Model(&db.Task{}).Where("id = ?", taskID).
			UpdateColumn("volunteers_needed", gorm.Expr("volunteers_needed + 1")).Error
		if err != nil {
			return fmt.Errorf("failed to release task place: %w", err)
		}
		return nil
	})
}

// CompleteTask marks a task completed and, if awardPoints is set, credits the
// task's points to every signed-up user. A task that is already completed is
// reported through AlreadyCompleted and nothing is credited.
func (d *DB) CompleteTask(ctx context.Context, taskID string, awardPoints bool) (*db.CompletionOutcome, error) {
	outcome := &db.CompletionOutcome{}
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.Task{}).
			Where("id = ? AND is_completed = ?", taskID, false).
			Updates(map[string]any{"is_completed": true, "completed_at": time.Now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("failed to complete task: %w", res.Error)
		}

		task, err := getTask(tx, taskID)
		if err != nil {
			return err
		}
		outcome.Task = task
		if res.RowsAffected == 0 {
			outcome.AlreadyCompleted = true
			return nil
		}

		if !awardPoints || task.Points == 0 {
			return nil
		}

		err = tx.Raw(`
			SELECT id FROM users
			WHERE id IN (SELECT user_id FROM task_signups WHERE task_id = ?)
			ORDER BY id
		`, taskID).Scan(&outcome.AwardedUserIDs).Error
		if err != nil {
			return fmt.Errorf("failed to find signed-up users: %w", err)
		}
		err = tx.Exec(`
			UPDATE users SET points = points + ?
			WHERE id IN (SELECT user_id FROM task_signups WHERE task_id = ?)
		`, task.Points, taskID).Error
		if err != nil {
			return fmt.Errorf("failed to award points: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func getTask(q *gorm.DB, taskID string) (*db.Task, error) {
	var task db.Task
	err := q.Where("id = ?", taskID).First(&task).Error
	if notFound(err) {
		return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func taskMissOrState(tx *gorm.DB, taskID string, fullErr error) error {
	task, err := getTask(tx, taskID)
	if err != nil {
		return err
	}
	if task.IsCompleted {
		return fmt.Errorf("task %s is completed: %w", taskID, db.ErrInvalidState)
	}
	return fmt.Errorf("task %s: %w", taskID, fullErr)
}
