package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voreskerne/frivillig/pkg/db"
)

const taskColumns = `id, title, description, task_date, category, points, volunteers_needed, is_completed, completed_at, created_by, created_at`

// CreateTask inserts a new task
func (d *DB) CreateTask(ctx context.Context, task *db.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, task.ID, task.Title, task.Description, task.TaskDate, task.Category, task.Points,
		task.VolunteersNeeded, task.IsCompleted, task.CompletedAt, task.CreatedBy, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by id
func (d *DB) GetTask(ctx context.Context, taskID string) (*db.Task, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListSignups retrieves the signups of a task
func (d *DB) ListSignups(ctx context.Context, taskID string) ([]db.TaskSignup, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT task_id, user_id, created_at FROM task_signups
		WHERE task_id = $1 ORDER BY created_at, user_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	defer rows.Close()

	var signups []db.TaskSignup
	for rows.Next() {
		var s db.TaskSignup
		if err := rows.Scan(&s.TaskID, &s.UserID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signup: %w", err)
		}
		signups = append(signups, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signups: %w", err)
	}

	return signups, nil
}

// SignUp takes one place on an open task for userID
func (d *DB) SignUp(ctx context.Context, taskID, userID string) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks SET volunteers_needed = volunteers_needed - 1
			WHERE id = $1 AND volunteers_needed > 0 AND is_completed = FALSE
		`, taskID)
		if err != nil {
			return fmt.Errorf("failed to reserve task place: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return taskMissOrState(ctx, tx, taskID, db.ErrTaskFull)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO task_signups (task_id, user_id, created_at) VALUES ($1, $2, $3)
		`, taskID, userID, time.Now().UTC())
		if uniqueConstraint(err) == signupPrimaryKey {
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
	return d.inTx(ctx, func(tx pgx.Tx) error {
		var completed bool
		err := tx.QueryRow(ctx, `SELECT is_completed FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&completed)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if completed {
			return fmt.Errorf("task %s is completed: %w", taskID, db.ErrInvalidState)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM task_signups WHERE task_id = $1 AND user_id = $2`, taskID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete signup: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("task %s: %w", taskID, db.ErrNotSignedUp)
		}

		if _, err := tx.Exec(ctx, `UPDATE tasks SET volunteers_needed = volunteers_needed + 1 WHERE id = $1`, taskID); err != nil {
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
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE tasks SET is_completed = TRUE, completed_at = NOW()
			WHERE id = $1 AND is_completed = FALSE
			RETURNING `+taskColumns, taskID)
		task, err := scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
			if errors.Is(getErr, pgx.ErrNoRows) {
				return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
			}
			if getErr != nil {
				return fmt.Errorf("failed to get task: %w", getErr)
			}
			outcome.Task = current
			outcome.AlreadyCompleted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		outcome.Task = task

		if !awardPoints || task.Points == 0 {
			return nil
		}

		rows, err := tx.Query(ctx, `
			UPDATE users SET points = points + $2
			WHERE id IN (SELECT user_id FROM task_signups WHERE task_id = $1)
			RETURNING id
		`, taskID, task.Points)
		if err != nil {
			return fmt.Errorf("failed to award points: %w", err)
		}
		outcome.AwardedUserIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to collect awarded users: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func taskMissOrState(ctx context.Context, tx pgx.Tx, taskID string, fullErr error) error {
	var completed bool
	err := tx.QueryRow(ctx, `SELECT is_completed FROM tasks WHERE id = $1`, taskID).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read task: %w", err)
	}
	if completed {
		return fmt.Errorf("task %s is completed: %w", taskID, db.ErrInvalidState)
	}
	return fmt.Errorf("task %s: %w", taskID, fullErr)
}

func scanTask(row pgx.Row) (*db.Task, error) {
	var t db.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.TaskDate, &t.Category, &t.Points,
		&t.VolunteersNeeded, &t.IsCompleted, &t.CompletedAt, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
